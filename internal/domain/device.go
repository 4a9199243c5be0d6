// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const MaxDeviceNameLen = 64

var (
	ErrDeviceNameTooLong = errors.New("device name too long")
	ErrDeviceNameEmpty   = errors.New("device name empty")
)

type DeviceID string

type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "Online"
	DeviceOffline DeviceStatus = "Offline"
)

type Device struct {
	ID       DeviceID     `json:"id"`
	Name     string       `json:"name"`
	IsParent bool         `json:"isParent"`
	Status   DeviceStatus `json:"status"`
	LastSeen time.Time    `json:"lastSeen"`
}

// FormatDeviceID renders the n-th registered device id.
func FormatDeviceID(n int) DeviceID {
	return DeviceID(fmt.Sprintf("JRV-NODE-%04d", n))
}

func ValidateDeviceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrDeviceNameEmpty
	}
	if len(name) > MaxDeviceNameLen {
		return "", ErrDeviceNameTooLong
	}
	return name, nil
}
