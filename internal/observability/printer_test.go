package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thisnaeem/metagen/internal/keypool"
	"github.com/thisnaeem/metagen/internal/scheduler"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	now := time.Now()
	p.PrintReport(&scheduler.Report{
		Succeeded: []scheduler.JobOutcome{{File: "a.jpg"}},
		Failed:    []scheduler.JobOutcome{{File: "b.jpg", Reason: "unsupported content"}},
		Credentials: []keypool.Snapshot{
			{DisplayName: "primary", State: keypool.StateValid, RequestCount: 2},
		},
		StartedAt:  now,
		FinishedAt: now.Add(3 * time.Second),
	})

	out := buf.String()
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "Failed:    1")
	assert.Contains(t, out, "b.jpg")
	assert.Contains(t, out, "primary")
}

func TestPrintReport_NilIsNoop(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintReport(nil)
	assert.Empty(t, buf.String())
}

func TestPrintKeyTable_MasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintKeyTable([]keypool.Snapshot{
		{Secret: "AIzaSyD-secret-key-12345", State: keypool.StateInvalid, LastError: "API key not valid"},
	})

	out := buf.String()
	assert.NotContains(t, out, "AIzaSyD-secret-key-12345", "full secrets must never be printed")
	assert.Contains(t, out, "invalid")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProgress(scheduler.Progress{Completed: 1, Total: 3, CurrentFile: "a.jpg"})
	assert.Contains(t, buf.String(), "[1/3] a.jpg")
}
