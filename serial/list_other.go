//go:build !linux

package serial

import (
	"sort"

	bugst "go.bug.st/serial"
)

// ListPorts returns the sorted serial port names reported by the OS.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}

func portExists(path string) bool {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return false
	}
	for _, p := range ports {
		if p == path {
			return true
		}
	}
	return false
}
