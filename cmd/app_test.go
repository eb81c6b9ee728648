package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
	"github.com/wolfitem/ai-briefing/internal/middleware"
)

func TestNewDispatcherRegistersConfiguredDestinations(t *testing.T) {
	cfg := model.DeliveryConfig{
		Destinations: []string{"file", "email", "kindle"},
		Email: model.EmailConfig{
			SMTPHost: "smtp.example.com",
			From:     "briefing@example.com",
			To:       []string{"me@example.com"},
		},
		Kindle: model.KindleConfig{Address: "me@kindle.com"},
		File:   model.FileConfig{Dir: t.TempDir()},
	}

	dispatcher, err := newDispatcher(cfg, middleware.NewMetricsCollector())
	require.NoError(t, err)
	require.Equal(t, []string{"email", "file", "kindle"}, dispatcher.Destinations())
}

func TestNewDispatcherRejectsInvalidDestinations(t *testing.T) {
	_, err := newDispatcher(model.DeliveryConfig{Destinations: []string{"fax"}}, nil)
	require.ErrorContains(t, err, "fax")

	_, err = newDispatcher(model.DeliveryConfig{Destinations: []string{"email"}}, nil)
	require.Error(t, err)
}
