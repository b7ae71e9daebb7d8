package telemetry

import (
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// InitSentry enables error reporting when a DSN is configured.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		log.Println("[SENTRY] DSN not provided, error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags["service"] = "postlater"
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	enabled = true
	log.Println("[SENTRY] error reporting initialized")
	return nil
}

// CaptureItemError reports an error that needs an operator, tagged with the item it concerns.
func CaptureItemError(err error, kind string, itemID int64) {
	if !enabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("item_kind", kind)
		scope.SetTag("item_id", itoa(itemID))
		sentry.CaptureException(err)
	})
}

func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}
