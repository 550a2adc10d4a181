package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"minerva/internal/session/store"
	dErrors "minerva/pkg/domain-errors"
	"minerva/pkg/platform/sentinel"
)

const flagTrue = "true"

func (s *Service) putJSON(ctx context.Context, key store.Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.store.Set(ctx, key, string(raw))
}

// getJSON loads key into v. A value that does not parse is deleted and
// reported as sentinel.ErrNotFound.
func (s *Service) getJSON(ctx context.Context, key store.Key, v any) error {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.WarnContext(ctx, "discarding unparseable session value", "key", string(key), "error", err)
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return delErr
		}
		return fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	return nil
}

// getString returns "" for absent keys.
func (s *Service) getString(ctx context.Context, key store.Key) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// deleteKeys deletes every key even when some deletions fail.
func (s *Service) deleteKeys(ctx context.Context, keys ...store.Key) error {
	var errs []error
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// setOrDelete writes value, or deletes key when value is empty.
func (s *Service) setOrDelete(ctx context.Context, key store.Key, value string) error {
	if value == "" {
		return s.store.Delete(ctx, key)
	}
	return s.store.Set(ctx, key, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func storeError(err error, message string) error {
	if err == nil {
		return nil
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
