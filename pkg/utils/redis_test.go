package utils

import (
	"context"
	"testing"
	"time"
)

func TestReleaseClaimScriptInitialized(t *testing.T) {
	if releaseClaimScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestClaimOnce_ValidatesInput(t *testing.T) {
	if _, err := ClaimOnce(context.Background(), nil, "k", "t", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
