package logging_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobmirror/blobmirror/logging"
)

var log = logging.Module("mymodule")

func TestLoggerFromContext(t *testing.T) {
	var lines []string

	printf := func(msg string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(msg, args...))
	}

	ctx := logging.WithLogger(context.Background(), logging.Printf(printf))

	log(ctx).Infof("hello %v", 42)
	log(ctx).Debugf("debug")

	require.Equal(t, []string{
		"[mymodule] hello 42",
		"[mymodule] debug",
	}, lines)
}

func TestNullLoggerWhenContextHasNone(t *testing.T) {
	// must not panic.
	log(context.Background()).Infof("into the void")
	log(logging.WithLogger(context.Background(), nil)).Errorf("also null")
}

func TestWithPrefix(t *testing.T) {
	var lines []string

	printf := func(msg string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(msg, args...))
	}

	ctx := logging.WithLogger(context.Background(), logging.Printf(printf))

	l := logging.WithPrefix("Azure: ", log(ctx))
	l.Warnf("slow request (%v)", "GetBlob")

	require.Equal(t, []string{"[mymodule] Azure: slow request (GetBlob)"}, lines)
}
