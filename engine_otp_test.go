package authcore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIssueOTPReturnsDeliverableCode(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("code %q contains a non-digit", code)
		}
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, code); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
}

func TestIssueOTPRejectsBadInput(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.IssueOTP(ctx, "", PurposeEmailVerification, 600); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("empty identity err = %v, want ErrInvalidOTP", err)
	}
	if _, err := engine.IssueOTP(ctx, "alice", OTPPurpose("mystery"), 600); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("unknown purpose err = %v, want ErrInvalidOTP", err)
	}
}

func TestIssueOTPSupersedesPriorCode(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("first IssueOTP failed: %v", err)
	}
	second, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("second IssueOTP failed: %v", err)
	}
	if first == second {
		t.Fatalf("reissue returned the same code %q", first)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, first); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("superseded code err = %v, want ErrInvalidOTP", err)
	}
	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, second); err != nil {
		t.Fatalf("current code failed verification: %v", err)
	}
}

func TestIssueOTPPurposesAreIndependent(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	verification, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP(email) failed: %v", err)
	}
	reset, err := engine.IssueOTP(ctx, "alice", PurposeForgotPassword, 600)
	if err != nil {
		t.Fatalf("IssueOTP(reset) failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, verification); err != nil {
		t.Fatalf("email verification code rejected: %v", err)
	}
	if err := engine.VerifyOTP(ctx, "alice", PurposeForgotPassword, reset); err != nil {
		t.Fatalf("password reset code rejected: %v", err)
	}
	if err := engine.VerifyOTP(ctx, "alice", PurposeForgotPassword, verification); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("cross-purpose code err = %v, want ErrInvalidOTP", err)
	}
}

func TestLiveOTPCodesAreGloballyUnique(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	seen := make(map[string]string, 300)
	for i := 0; i < 300; i++ {
		identity := fmt.Sprintf("user-%03d", i)
		code, err := engine.IssueOTP(ctx, identity, PurposeEmailVerification, 3600)
		if err != nil {
			t.Fatalf("IssueOTP #%d failed: %v", i, err)
		}
		if owner, dup := seen[code]; dup {
			t.Fatalf("code %q live for two identities (%s)", code, owner)
		}
		seen[code] = identity
	}
}

func TestIssueOTPRerollsOnCollision(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	codes := []string{"111111", "111111", "222222"}
	engine.otpGen = func(int) (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}

	first, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("first IssueOTP failed: %v", err)
	}
	if first != "111111" {
		t.Fatalf("first code = %q, want 111111", first)
	}

	// The generator repeats the claimed code once; issuance must re-roll
	// past it rather than hand out a duplicate.
	second, err := engine.IssueOTP(ctx, "bob", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("second IssueOTP failed: %v", err)
	}
	if second != "222222" {
		t.Fatalf("second code = %q, want 222222", second)
	}
}

func TestIssueOTPBoundedAllocationFailure(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	engine.otpGen = func(int) (string, error) {
		return "333333", nil
	}

	if _, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600); err != nil {
		t.Fatalf("seed IssueOTP failed: %v", err)
	}

	// Every candidate collides with alice's live code; the loop must stop
	// at its budget instead of spinning forever.
	_, err := engine.IssueOTP(ctx, "bob", PurposeEmailVerification, 600)
	if !errors.Is(err, ErrCodeAllocationExhausted) {
		t.Fatalf("err = %v, want ErrCodeAllocationExhausted", err)
	}
}

func TestSupersedeInterruptionKeepsCodesUnique(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	codes := []string{"777777", "777777", "888888"}
	engine.otpGen = func(int) (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}

	if _, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600); err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	// Replay a supersede cut short after its first step: the record is
	// already gone but the code index entry survives. No live record may
	// hold 777777 now, and the orphaned entry must keep the code out of
	// circulation until its TTL clears it.
	if err := engine.otpStore.Delete(ctx, "alice", PurposeEmailVerification); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, "777777"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("orphaned code still verifies: err = %v", err)
	}

	code, err := engine.IssueOTP(ctx, "bob", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP(bob) failed: %v", err)
	}
	if code == "777777" {
		t.Fatal("interrupted supersede let two identities hold one code")
	}
}

func TestConsumeOTPCannotFreeForeignCode(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	engine.otpGen = func(int) (string, error) { return "555555", nil }
	if _, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600); err != nil {
		t.Fatalf("IssueOTP(alice) failed: %v", err)
	}

	engine.otpGen = func(int) (string, error) { return "666666", nil }
	if _, err := engine.IssueOTP(ctx, "bob", PurposeEmailVerification, 600); err != nil {
		t.Fatalf("IssueOTP(bob) failed: %v", err)
	}

	// Bob presents alice's code. His own record is consumed, but the index
	// release is keyed to the record's stored code, so alice's entry stays
	// claimed.
	if err := engine.ConsumeOTP(ctx, "bob", PurposeEmailVerification, "555555"); err != nil {
		t.Fatalf("ConsumeOTP failed: %v", err)
	}

	// With no record left, a repeated consume cannot free the foreign entry
	// either: the index names alice as the owner.
	if err := engine.ConsumeOTP(ctx, "bob", PurposeEmailVerification, "555555"); err != nil {
		t.Fatalf("repeated ConsumeOTP failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, "555555"); err != nil {
		t.Fatalf("alice's code no longer verifies: %v", err)
	}

	codes := []string{"555555", "999999"}
	engine.otpGen = func(int) (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
	got, err := engine.IssueOTP(ctx, "carol", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP(carol) failed: %v", err)
	}
	if got == "555555" {
		t.Fatal("alice's live code was reissued to another identity")
	}
}

func TestVerifyOTPUnknownIdentity(t *testing.T) {
	_, _, engine := newTestEngine(t)

	err := engine.VerifyOTP(context.Background(), "ghost", PurposeEmailVerification, "123456")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("err = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyOTPWrongCode(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, wrong); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("err = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyOTPStatusGate(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.IssueOTP(ctx, "alice", PurposeForgotPassword, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeForgotPassword, code); err != nil {
		t.Fatalf("VerifyOTP before mark failed: %v", err)
	}

	if err := engine.MarkOTPVerified(ctx, "alice", PurposeForgotPassword); err != nil {
		t.Fatalf("MarkOTPVerified failed: %v", err)
	}

	// The strict gate: a VERIFIED record no longer passes plain VerifyOTP,
	// even with the correct code.
	if err := engine.VerifyOTP(ctx, "alice", PurposeForgotPassword, code); !errors.Is(err, ErrExpiredOTP) {
		t.Fatalf("VerifyOTP after mark err = %v, want ErrExpiredOTP", err)
	}

	// The password-update step uses the confirmed-record gate instead.
	if err := engine.VerifyConfirmedOTP(ctx, "alice", PurposeForgotPassword, code); err != nil {
		t.Fatalf("VerifyConfirmedOTP failed: %v", err)
	}

	// Before the mark step, the confirmed gate rejects a CREATED record.
	fresh, err := engine.IssueOTP(ctx, "bob", PurposeForgotPassword, 600)
	if err != nil {
		t.Fatalf("IssueOTP(bob) failed: %v", err)
	}
	if err := engine.VerifyConfirmedOTP(ctx, "bob", PurposeForgotPassword, fresh); !errors.Is(err, ErrExpiredOTP) {
		t.Fatalf("VerifyConfirmedOTP on CREATED err = %v, want ErrExpiredOTP", err)
	}
}

func TestVerifyOTPExpiredRecord(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	// A record whose embedded expiry has passed but whose key still exists
	// (clock skew between store TTL and wall clock) is expired, not invalid.
	record := &otpRecord{
		Code:      "424242",
		Status:    OTPStatusCreated,
		CreatedAt: time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	if err := engine.otpStore.Save(ctx, "alice", PurposeEmailVerification, record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, "424242"); !errors.Is(err, ErrExpiredOTP) {
		t.Fatalf("err = %v, want ErrExpiredOTP", err)
	}
}

func TestVerifyOTPNaturallyExpiredKey(t *testing.T) {
	mr, _, engine := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 60)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	// The store evicted the record entirely; absence reads as invalid.
	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, code); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("err = %v, want ErrInvalidOTP", err)
	}
}

func TestMarkOTPVerifiedAbsentRecordIsNoOp(t *testing.T) {
	_, _, engine := newTestEngine(t)

	if err := engine.MarkOTPVerified(context.Background(), "ghost", PurposeForgotPassword); err != nil {
		t.Fatalf("MarkOTPVerified on absent record failed: %v", err)
	}
}

func TestConsumeOTPIsIdempotent(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	if err := engine.ConsumeOTP(ctx, "alice", PurposeEmailVerification, code); err != nil {
		t.Fatalf("first ConsumeOTP failed: %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice", PurposeEmailVerification, code); err != nil {
		t.Fatalf("second ConsumeOTP failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, code); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("consumed code err = %v, want ErrInvalidOTP", err)
	}
}

func TestConsumeOTPFreesCodeForReuse(t *testing.T) {
	_, _, engine := newTestEngine(t)
	ctx := context.Background()

	engine.otpGen = func(int) (string, error) {
		return "555555", nil
	}

	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	if err := engine.ConsumeOTP(ctx, "alice", PurposeEmailVerification, code); err != nil {
		t.Fatalf("ConsumeOTP failed: %v", err)
	}

	// Once consumed, the code returns to the allocatable space.
	again, err := engine.IssueOTP(ctx, "bob", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP after consume failed: %v", err)
	}
	if again != "555555" {
		t.Fatalf("code = %q, want 555555", again)
	}
}

type recordingNotifier struct {
	delivered chan string
}

func (n *recordingNotifier) Deliver(_ context.Context, identity string, _ OTPPurpose, code string) error {
	n.delivered <- identity + ":" + code
	return nil
}

func TestIssueOTPDispatchesNotification(t *testing.T) {
	_, rdb := newTestRedis(t)

	notifier := &recordingNotifier{delivered: make(chan string, 1)}
	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).WithNotifier(notifier).Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	code, err := engine.IssueOTP(context.Background(), "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	select {
	case got := <-notifier.delivered:
		if got != "alice:"+code {
			t.Fatalf("delivered %q, want %q", got, "alice:"+code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never invoked")
	}
}

type failingNotifier struct{}

func (failingNotifier) Deliver(context.Context, string, OTPPurpose, string) error {
	return errors.New("smtp down")
}

func TestNotifierFailureDoesNotRollBackIssuance(t *testing.T) {
	_, rdb := newTestRedis(t)

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).WithNotifier(failingNotifier{}).Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	code, err := engine.IssueOTP(ctx, "alice", PurposeEmailVerification, 600)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}

	if err := engine.VerifyOTP(ctx, "alice", PurposeEmailVerification, code); err != nil {
		t.Fatalf("code unusable after delivery failure: %v", err)
	}
}
