package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/histeq/cluster/internal/job"
)

func TestCommandKey(t *testing.T) {
	c := Command{Tag: Job, JobKind: job.Equalisation, Filename: "a.png"}
	assert.Equal(t, job.Key{Kind: job.Equalisation, Filename: "a.png"}, c.Key())
}

func TestCommandBulkLen(t *testing.T) {
	c := Command{Bulk: [][]byte{make([]byte, 10), make([]byte, 5)}}
	assert.Equal(t, 15, c.BulkLen())
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "HELO", Helo.String())
	assert.Equal(t, "EHLO", Ehlo.String())
	assert.Equal(t, "JOB", Job.String())
	assert.Equal(t, "RESULT", Result.String())
	assert.Equal(t, "HEARTBEAT", Heartbeat.String())
	assert.Equal(t, "BYE", Bye.String())
}
