package collector

import "strconv"

// syscallNames maps x86_64 syscall numbers to their names for presentation
// in profiles and the admin API. Unrecognized IDs fall back to a numeric
// placeholder rather than failing the collector.
var syscallNames = map[uint32]string{
	0:   "read",
	1:   "write",
	2:   "open",
	3:   "close",
	4:   "stat",
	5:   "fstat",
	6:   "lstat",
	7:   "poll",
	8:   "lseek",
	9:   "mmap",
	10:  "mprotect",
	11:  "munmap",
	12:  "brk",
	13:  "rt_sigaction",
	14:  "rt_sigprocmask",
	16:  "ioctl",
	17:  "pread64",
	18:  "pwrite64",
	19:  "readv",
	20:  "writev",
	21:  "access",
	22:  "pipe",
	23:  "select",
	24:  "sched_yield",
	25:  "mremap",
	32:  "dup",
	33:  "dup2",
	35:  "nanosleep",
	39:  "getpid",
	41:  "socket",
	42:  "connect",
	43:  "accept",
	44:  "sendto",
	45:  "recvfrom",
	46:  "sendmsg",
	47:  "recvmsg",
	48:  "shutdown",
	49:  "bind",
	50:  "listen",
	56:  "clone",
	57:  "fork",
	59:  "execve",
	60:  "exit",
	61:  "wait4",
	62:  "kill",
	63:  "uname",
	72:  "fcntl",
	78:  "getdents",
	79:  "getcwd",
	82:  "rename",
	83:  "mkdir",
	84:  "rmdir",
	85:  "creat",
	86:  "link",
	87:  "unlink",
	89:  "readlink",
	97:  "getrlimit",
	102: "getuid",
	104: "getgid",
	110: "getppid",
	157: "prctl",
	186: "gettid",
	202: "futex",
	218: "set_tid_address",
	228: "clock_gettime",
	231: "exit_group",
	232: "epoll_wait",
	233: "epoll_ctl_old",
	257: "openat",
	262: "newfstatat",
	273: "set_robust_list",
	302: "prlimit64",
	309: "getcpu",
	318: "getrandom",
	435: "clone3",
	439: "faccessat2",
}

// syscallName returns the name for id, or a "syscall_<id>" placeholder for
// unrecognized syscall numbers.
func syscallName(id uint32) string {
	if name, ok := syscallNames[id]; ok {
		return name
	}
	return "syscall_" + strconv.FormatUint(uint64(id), 10)
}
