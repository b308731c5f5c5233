package ova

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// OVF resource types used when reading virtual hardware.
const (
	resourceProcessor = 3
	resourceMemory    = 4
)

type envelope struct {
	XMLName        xml.Name        `xml:"Envelope"`
	References     []fileRef       `xml:"References>File"`
	Disks          []diskDesc      `xml:"DiskSection>Disk"`
	Networks       []networkDesc   `xml:"NetworkSection>Network"`
	VirtualSystems []virtualSystem `xml:"VirtualSystem"`
}

type fileRef struct {
	ID   string `xml:"id,attr"`
	Href string `xml:"href,attr"`
	Size int64  `xml:"size,attr"`
}

type diskDesc struct {
	DiskID    string `xml:"diskId,attr"`
	FileRef   string `xml:"fileRef,attr"`
	Capacity  string `xml:"capacity,attr"`
	Units     string `xml:"capacityAllocationUnits,attr"`
	Format    string `xml:"format,attr"`
	Populated int64  `xml:"populatedSize,attr"`
}

type networkDesc struct {
	Name string `xml:"name,attr"`
}

type virtualSystem struct {
	ID    string         `xml:"id,attr"`
	Name  string         `xml:"Name"`
	Items []hardwareItem `xml:"VirtualHardwareSection>Item"`
}

type hardwareItem struct {
	ResourceType    int    `xml:"ResourceType"`
	VirtualQuantity uint64 `xml:"VirtualQuantity"`
	AllocationUnits string `xml:"AllocationUnits"`
}

func parseDescriptor(data []byte) (*envelope, error) {
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse OVF descriptor: %w", err)
	}
	if len(env.VirtualSystems) == 0 {
		return nil, fmt.Errorf("OVF descriptor declares no virtual system")
	}
	return &env, nil
}

// parseUnits converts an OVF allocation unit string such as "byte * 2^30"
// into a byte multiplier. An empty string means bytes.
func parseUnits(units string) (uint64, error) {
	u := strings.ReplaceAll(units, " ", "")
	if u == "" || u == "byte" {
		return 1, nil
	}

	base, exp, ok := strings.Cut(u, "*2^")
	if !ok || base != "byte" {
		return 0, fmt.Errorf("unsupported allocation units %q", units)
	}
	n, err := strconv.Atoi(exp)
	if err != nil || n < 0 || n > 60 {
		return 0, fmt.Errorf("unsupported allocation units %q", units)
	}
	return 1 << uint(n), nil
}
