package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidStatus  = errors.New("invalid device status")
)

// DeviceRegistry is the in-memory device list behind the HTTP registry API.
// The relay core never consults it.
type DeviceRegistry struct {
	now core.Clock

	mu      sync.RWMutex
	devices []*domain.Device
	byID    map[domain.DeviceID]*domain.Device
	counter int
}

func NewDeviceRegistry(now core.Clock) *DeviceRegistry {
	if now == nil {
		now = time.Now
	}
	return &DeviceRegistry{
		now:  now,
		byID: make(map[domain.DeviceID]*domain.Device),
	}
}

func (r *DeviceRegistry) Register(name string, isParent bool) (domain.Device, error) {
	name, err := domain.ValidateDeviceName(name)
	if err != nil {
		return domain.Device{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	d := &domain.Device{
		ID:       domain.FormatDeviceID(r.counter),
		Name:     name,
		IsParent: isParent,
		Status:   domain.DeviceOnline,
		LastSeen: r.now().UTC(),
	}
	r.devices = append(r.devices, d)
	r.byID[d.ID] = d
	log.Info().Str("module", "app.devices").Str("device", string(d.ID)).Str("name", d.Name).Msg("registered device")
	return *d, nil
}

func (r *DeviceRegistry) List() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

func (r *DeviceRegistry) Get(id domain.DeviceID) (domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return domain.Device{}, ErrDeviceNotFound
	}
	return *d, nil
}

func (r *DeviceRegistry) UpdateStatus(id domain.DeviceID, status domain.DeviceStatus) (domain.Device, error) {
	switch status {
	case domain.DeviceOnline, domain.DeviceOffline:
	default:
		return domain.Device{}, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return domain.Device{}, ErrDeviceNotFound
	}
	d.Status = status
	d.LastSeen = r.now().UTC()
	log.Info().Str("module", "app.devices").Str("device", string(id)).Str("status", string(status)).Msg("updated device")
	return *d, nil
}

// Seen records a command delivered to the device.
func (r *DeviceRegistry) Seen(id domain.DeviceID) (domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return domain.Device{}, ErrDeviceNotFound
	}
	d.LastSeen = r.now().UTC()
	return *d, nil
}
