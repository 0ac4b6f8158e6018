package api

import (
	"fmt"

	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/phrazzld/bookings-api/internal/service"
)

// ListStyleFor returns the list shape served under v: a bare array up to
// major version 1, an envelope from 2 on.
func ListStyleFor(v versioning.Version) ListStyle {
	if v.Major >= 2 {
		return ListEnvelope
	}
	return ListArray
}

// MountRegistry registers a handler for every entity kind of reg under every
// supported version and returns the matching documentation resources.
func MountRegistry(d *Dispatcher, reg *service.Registry) ([]DocResource, error) {
	mounts := []func() (DocResource, error){
		func() (DocResource, error) { return mount(d, reg.Bookings.Service) },
		func() (DocResource, error) { return mount(d, reg.Customers.Service) },
		func() (DocResource, error) { return mount(d, reg.Payments.Service) },
		func() (DocResource, error) { return mount(d, reg.Repairs.Service) },
		func() (DocResource, error) { return mount(d, reg.Users.Service) },
	}

	resources := make([]DocResource, 0, len(mounts))
	for _, m := range mounts {
		res, err := m()
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func mount[E service.Entity](d *Dispatcher, svc *service.Service[E]) (DocResource, error) {
	reg, ok := service.Lookup(svc.Kind())
	if !ok {
		return DocResource{}, fmt.Errorf("%w: no registration for kind %q", ErrInvalidRoute, svc.Kind())
	}
	for _, desc := range d.versions.Descriptors() {
		handler := NewResourceHandler(reg, svc, ListStyleFor(desc.Version))
		if err := d.Register(reg.Resource, desc.Version, handler.Routes()); err != nil {
			return DocResource{}, err
		}
	}
	return DocResource{Registration: reg, Sample: svc.New()}, nil
}
