package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_AssemblesRunOption(t *testing.T) {
	opt := Command("/usr/bin/python3").
		Args("-c", "print(1)").
		JailPath("/var/lib/oj-judger/jails/abc").
		ExecPath("/home/judge").
		UID(65534).
		ProcessLimit(16).
		MemoryLimitKB(262144).
		CPUTimeLimitMs(1000).
		RealTimeLimitMs(3000).
		SyscallLimit("read", "write", "exit_group").
		Network(NetworkIsolated).
		Env("PATH=/usr/bin", "HOME=/home/judge").
		Option()

	assert.Equal(t, "/usr/bin/python3", opt.Cmd)
	assert.Equal(t, []string{"-c", "print(1)"}, opt.Args)
	assert.Equal(t, "/var/lib/oj-judger/jails/abc", opt.JailPath)
	assert.Equal(t, "/home/judge", opt.ExecPath)
	assert.True(t, opt.HasUID)
	assert.EqualValues(t, 65534, opt.UID)
	assert.EqualValues(t, 16, opt.ProcessLimit)
	assert.EqualValues(t, 262144, opt.MemoryLimit)
	assert.EqualValues(t, 1000, opt.CPUTimeLimit)
	assert.EqualValues(t, 3000, opt.RealTimeLimit)
	assert.Equal(t, []string{"read", "write", "exit_group"}, opt.SyscallLimit)
	assert.Equal(t, NetworkIsolated, opt.Network)
	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/home/judge"}, opt.Env)
}

func TestBuilder_NoUID_LeavesHasUIDFalse(t *testing.T) {
	opt := Command("/bin/true").Option()
	assert.False(t, opt.HasUID)
}

func TestBuilder_StdinStdoutRedirect(t *testing.T) {
	opt := Command("/bin/cat").Stdin(3).Stdout(4).Option()
	if assert.NotNil(t, opt.StdinRedirect) {
		assert.Equal(t, 3, *opt.StdinRedirect)
	}
	if assert.NotNil(t, opt.StdoutRedirect) {
		assert.Equal(t, 4, *opt.StdoutRedirect)
	}
}
