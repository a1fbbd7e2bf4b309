package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpRecordVersionV1 = 1

var errOTPNotFound = errors.New("otp record not found")

// otpRecord is the stored state of one live passcode. ExpiresAt duplicates
// the Redis key TTL so a record that outlives its expiry by clock skew is
// still rejected as expired rather than accepted.
type otpRecord struct {
	Code      string
	Status    OTPStatus
	CreatedAt int64
	ExpiresAt int64
}

// otpStore owns two key families: the record keyed by (identity, purpose)
// and the global code index keyed by code alone. At most one record exists
// per (identity, purpose); while a record is live no other live record may
// carry the same code.
type otpStore struct {
	redis        *redis.Client
	recordPrefix string
	codePrefix   string
}

func newOTPStore(redisClient *redis.Client, recordPrefix, codePrefix string) *otpStore {
	return &otpStore{
		redis:        redisClient,
		recordPrefix: recordPrefix,
		codePrefix:   codePrefix,
	}
}

func (s *otpStore) recordKey(identity string, purpose OTPPurpose) string {
	return s.recordPrefix + ":" + string(purpose) + ":" + identity
}

func (s *otpStore) codeKey(code string) string {
	return s.codePrefix + ":" + code
}

// Save writes the record, unconditionally overwriting any prior record and
// its TTL.
func (s *otpStore) Save(ctx context.Context, identity string, purpose OTPPurpose, record *otpRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.recordKey(identity, purpose), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the live record for (identity, purpose), or errOTPNotFound.
func (s *otpStore) Get(ctx context.Context, identity string, purpose OTPPurpose) (*otpRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(identity, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeOTPRecord(data)
}

// MarkVerified transitions the record to OTPStatusVerified, preserving its
// remaining TTL. An absent record is a silent no-op: the record vanishing
// between verify and mark means natural expiry, and the flow fails on the
// next step anyway.
func (s *otpStore) MarkVerified(ctx context.Context, identity string, purpose OTPPurpose) error {
	record, err := s.Get(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, errOTPNotFound) {
			return nil
		}
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}

	record.Status = OTPStatusVerified
	return s.Save(ctx, identity, purpose, record, ttl)
}

// Delete removes the record. Deleting an absent record is not an error.
func (s *otpStore) Delete(ctx context.Context, identity string, purpose OTPPurpose) error {
	if err := s.redis.Del(ctx, s.recordKey(identity, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ClaimCode atomically reserves code in the global index for identity. It
// returns false when another live record already holds the code.
func (s *otpStore) ClaimCode(ctx context.Context, code, identity string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.codeKey(code), identity, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// ReleaseCode frees code in the global index. Releasing an absent code is
// not an error.
func (s *otpStore) ReleaseCode(ctx context.Context, code string) error {
	if err := s.redis.Del(ctx, s.codeKey(code)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Frees the index entry only when identity still owns it, in one script
// call, so a stale or hostile code value cannot release another identity's
// live code.
const releaseCodeIfOwnerScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
end
return 0
`

var releaseCodeIfOwnerLua = redis.NewScript(releaseCodeIfOwnerScript)

// ReleaseCodeIfOwner frees code in the global index if and only if the index
// entry names identity as its owner. An absent or foreign entry is a no-op.
func (s *otpStore) ReleaseCodeIfOwner(ctx context.Context, code, identity string) error {
	err := releaseCodeIfOwnerLua.Run(ctx, s.redis, []string{s.codeKey(code)}, identity).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func encodeOTPRecord(record *otpRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(byte(record.Status))

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Code) > 255 {
		return nil, errors.New("otp record code too long")
	}
	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*otpRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &otpRecord{
		Status: OTPStatus(status),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
