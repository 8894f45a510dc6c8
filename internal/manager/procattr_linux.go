package manager

import "syscall"

// sysProcAttr puts the worker in its own process group. The kernel sends it
// SIGTERM if the manager dies.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
