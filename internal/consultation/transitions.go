package consultation

// Action names a lifecycle transition.
type Action string

const (
	ActionQuote    Action = "quote"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

var transitions = map[Action]map[Status]Status{
	ActionQuote:  {StatusPending: StatusQuoted},
	ActionAccept: {StatusQuoted: StatusAccepted},
	ActionReject: {StatusQuoted: StatusRejected},
	ActionStart:  {StatusAccepted: StatusInProgress},
	ActionComplete: {
		StatusAccepted:   StatusCompleted,
		StatusInProgress: StatusCompleted,
	},
	ActionCancel: {
		StatusPending: StatusCancelled,
		StatusQuoted:  StatusCancelled,
	},
}

// Next returns the status reached by applying a to from.
func Next(from Status, a Action) (Status, error) {
	if to, ok := transitions[a][from]; ok {
		return to, nil
	}
	return "", ErrInvalidTransition
}

// MeetingAction names a meeting sub-state transition.
type MeetingAction string

const (
	MeetingActionSchedule MeetingAction = "schedule"
	MeetingActionComplete MeetingAction = "complete"
	MeetingActionCancel   MeetingAction = "cancel"
)

// Scheduling from SCHEDULED or CANCELLED is a reschedule.
var meetingTransitions = map[MeetingAction]map[MeetingStatus]MeetingStatus{
	MeetingActionSchedule: {
		MeetingPending:   MeetingScheduled,
		MeetingScheduled: MeetingScheduled,
		MeetingCancelled: MeetingScheduled,
	},
	MeetingActionComplete: {MeetingScheduled: MeetingCompleted},
	MeetingActionCancel:   {MeetingScheduled: MeetingCancelled},
}

func NextMeeting(from MeetingStatus, a MeetingAction) (MeetingStatus, error) {
	if to, ok := meetingTransitions[a][from]; ok {
		return to, nil
	}
	return "", ErrInvalidTransition
}

// meetingOpen reports whether the consultation is in a status where its meeting can move.
func meetingOpen(s Status) bool {
	return s == StatusAccepted || s == StatusInProgress
}

func feedbackOpen(s Status) bool {
	return s == StatusAccepted || s == StatusInProgress || s == StatusCompleted
}
