package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"

	"github.com/cespare/xxhash/v2"
)

var errNoHardwareAddr = errors.New("idgen: no hardware address")

// DeriveMachineID returns a machine id derived from the hardware addresses of
// the host's non-loopback interfaces. When none are available it falls back to
// a random value in [0, MaxMachineID].
func DeriveMachineID() int64 {
	if id, err := machineIDFromInterfaces(net.Interfaces); err == nil {
		return id
	}
	return randomMachineID()
}

func machineIDFromInterfaces(list func() ([]net.Interface, error)) (int64, error) {
	ifaces, err := list()
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	n := 0
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
			continue
		}
		_, _ = h.Write(ifc.HardwareAddr)
		n++
	}
	if n == 0 {
		return 0, errNoHardwareAddr
	}
	return int64(h.Sum64() & MaxMachineID), nil
}

func randomMachineID() int64 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint16(b[:])) & MaxMachineID
}
