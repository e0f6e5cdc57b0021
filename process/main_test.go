package process_test

import (
	"fmt"
	"os"
	"testing"
	"time"
)

// Invoked by `go test`, switch between helper and running tests based on env
func TestMain(m *testing.M) {
	switch os.Getenv("TEST_MAIN") {
	case "exit-2":
		os.Exit(2)

	case "echo-env":
		fmt.Println(os.Getenv("AVAILABILITY_BACKEND_URL"))
		os.Exit(0)

	// don't handle the signals so that we can detect the process was signaled
	case "sleeper":
		fmt.Println("Ready")
		time.Sleep(10 * time.Second)
		os.Exit(0)

	default:
		os.Exit(m.Run())
	}
}
