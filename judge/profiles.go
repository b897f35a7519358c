package judge

// DefaultSyscallProfiles ships minimal allow-lists for a handful of
// illustrative languages, as a convenience — not an exhaustive language
// table. Callers of judge.Run are expected to supply SyscallList
// themselves for anything beyond these.
var DefaultSyscallProfiles = map[string][]string{
	"c": {
		"read", "write", "open", "openat", "close", "fstat", "lseek",
		"mmap", "mprotect", "munmap", "brk", "rt_sigaction", "rt_sigprocmask",
		"rt_sigreturn", "ioctl", "access", "execve", "exit", "exit_group",
		"arch_prctl", "set_tid_address", "set_robust_list", "futex",
		"getrandom", "prlimit64",
	},
	"python3": {
		"read", "write", "open", "openat", "close", "fstat", "lseek",
		"mmap", "mprotect", "munmap", "brk", "rt_sigaction", "rt_sigprocmask",
		"rt_sigreturn", "ioctl", "access", "execve", "exit", "exit_group",
		"arch_prctl", "set_tid_address", "set_robust_list", "futex",
		"getrandom", "prlimit64", "clock_gettime", "getcwd", "stat",
		"readlink", "getdents64", "pread64", "sysinfo", "uname",
	},
	"sh": {
		"read", "write", "open", "openat", "close", "fstat", "lseek",
		"mmap", "mprotect", "munmap", "brk", "rt_sigaction", "rt_sigprocmask",
		"rt_sigreturn", "execve", "exit", "exit_group", "wait4", "fork",
		"clone", "dup2", "pipe", "access", "getcwd", "chdir",
	},
}
