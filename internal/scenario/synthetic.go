package scenario

import (
	"context"

	"github.com/amcassist/amcassist/internal/warehouse"
)

// SyntheticTenants back the demonstration mode used when no warehouse is
// configured.
var SyntheticTenants = []warehouse.Tenant{
	{ID: 1, Name: "Brand A (Electronics)"},
	{ID: 2, Name: "Brand B (Fashion)"},
	{ID: 3, Name: "Brand C (Home & Kitchen)"},
	{ID: 4, Name: "Global Corp"},
}

// SyntheticDirectory resolves the synthetic tenants. Advertiser ids are the
// instance id plus 100.
type SyntheticDirectory struct{}

func (SyntheticDirectory) InstanceIDsByName(_ context.Context, name string) ([]int64, error) {
	ids := make([]int64, 0, 1)
	for _, tenant := range SyntheticTenants {
		if tenant.Name == name {
			ids = append(ids, tenant.ID)
		}
	}
	return ids, nil
}

func (SyntheticDirectory) AdvertiserIDsByInstance(_ context.Context, instanceIDs []int64) ([]int64, error) {
	ids := make([]int64, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		ids = append(ids, id+100)
	}
	return ids, nil
}

func (SyntheticDirectory) ListTenants(context.Context) ([]warehouse.Tenant, error) {
	out := make([]warehouse.Tenant, len(SyntheticTenants))
	copy(out, SyntheticTenants)
	return out, nil
}
