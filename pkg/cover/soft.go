package cover

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"Cover-Art-Go/pkg/metrics"
)

// SoftList runs fn on behalf of an adapter operation and converts any error
// into an empty result. The token is checked before fn runs and again after it
// returns; a cancelled token discards whatever fn produced. Panics raised by
// third party code inside fn are recovered and treated like errors.
func SoftList[T any](tok *Token, service, op string, fn func(ctx context.Context) ([]T, error)) (out []T) {
	if tok.Cancelled() {
		return nil
	}
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			out = nil
		}
		if err == nil && tok.Cancelled() {
			err = ErrCancelled
			out = nil
		}
		report(service, op, err, time.Since(start))
	}()
	out, err = fn(tok.Context())
	if err != nil {
		out = nil
	}
	return out
}

// SoftOne is the single value counterpart of SoftList.
func SoftOne[T any](tok *Token, service, op string, fn func(ctx context.Context) (*T, error)) (out *T) {
	if tok.Cancelled() {
		return nil
	}
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			out = nil
		}
		if err == nil && tok.Cancelled() {
			err = ErrCancelled
			out = nil
		}
		report(service, op, err, time.Since(start))
	}()
	out, err = fn(tok.Context())
	if err != nil {
		out = nil
	}
	return out
}

// guarded runs fn, an adapter call made by the session itself, and reports a
// panic escaping it as a failed call. Results fn did not assign stay zero.
func guarded(service, op string, fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			report(service, op, fmt.Errorf("panic: %v", r), time.Since(start))
		}
	}()
	fn()
}

// CheckOwner returns ErrForeignService when service does not match owner.
func CheckOwner(owner, service string) error {
	if owner != service {
		return fmt.Errorf("%w: got %q want %q", ErrForeignService, owner, service)
	}
	return nil
}

func report(service, op string, err error, took time.Duration) {
	outcome := classify(err)
	metrics.ObserveAdapterCall(service, op, outcome, took)
	log := logrus.WithFields(logrus.Fields{"service": service, "op": op})
	switch outcome {
	case "ok":
		log.WithField("took", took).Debug("adapter call finished")
	case "cancelled":
		log.Debug("adapter call cancelled")
	case "contract":
		log.WithError(err).Error("adapter received an item it does not own")
	case "input":
		log.WithError(err).Info("adapter skipped query")
	default:
		log.WithError(err).WithField("kind", outcome).Warn("adapter call failed")
	}
}
