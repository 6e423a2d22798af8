package server

import (
	"net"
	"os"
	"strings"

	"github.com/rahsheen/rocketjob/enforce"
)

// SocketListen listens on a unix socket when the address ends in
// ".sock", else on TCP.
func SocketListen(socket string) net.Listener {
	if strings.HasSuffix(socket, ".sock") {
		os.Remove(socket)
		unixListener, err := net.Listen("unix", socket)
		enforce.ENFORCE(err, "Listen failure (UNIX socket)", socket)
		err = os.Chmod(socket, 0777)
		enforce.ENFORCE(err)
		return unixListener
	}

	tcpListener, err := net.Listen("tcp", socket)
	enforce.ENFORCE(err, "Listen failure (TCP)", socket)
	return tcpListener
}
