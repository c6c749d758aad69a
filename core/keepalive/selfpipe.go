package keepalive

import "syscall"

// newSelfPipe creates a pipe used to wake the waiter loop out of
// poller.Wait when a new connection is offered or shutdown begins. It
// uses raw fds rather than os.Pipe so no *os.File finalizer can close
// them behind the poller's back.
func newSelfPipe() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

// writeTrigger wakes the waiter loop; the written byte's value carries no
// meaning, only its arrival does.
func writeTrigger(fd int) {
	syscall.Write(fd, []byte{0})
}

// drainTrigger empties the trigger pipe after a wakeup so poller.Wait
// doesn't immediately return readable again.
func drainTrigger(fd int) {
	buf := make([]byte, 64)
	for {
		n, err := syscall.Read(fd, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}
