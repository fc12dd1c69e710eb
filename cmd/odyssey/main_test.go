package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

func TestRunJobsArguments(t *testing.T) {
	cfg := &app.Config{RedisAddr: "127.0.0.1:0"}
	require.Error(t, runJobs(context.Background(), cfg, nil))

	err := runJobs(context.Background(), cfg, []string{"trigger"})
	require.ErrorContains(t, err, "task name required")

	err = runJobs(context.Background(), cfg, []string{"purge"})
	require.ErrorContains(t, err, "unknown subcommand")
}
