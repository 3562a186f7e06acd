package app

import (
	"slices"
	"testing"

	"github.com/dkeye/Hearing/internal/domain"
)

func TestGroupsFor(t *testing.T) {
	active := &domain.Conference{ID: "c-1", Status: domain.ConferenceInSession}
	closed := &domain.Conference{ID: "c-2", Status: domain.ConferenceClosed}

	tests := []struct {
		name     string
		identity domain.Identity
		conf     *domain.Conference
		want     []GroupName
	}{
		{
			name:     "individual in active conference",
			identity: domain.Identity{Name: "Alice@Example.com", Role: domain.RoleIndividual},
			conf:     active,
			want:     []GroupName{"alice@example.com", "c-1"},
		},
		{
			name:     "closed conference is not joined",
			identity: domain.Identity{Name: "bob", Role: domain.RoleRepresentative},
			conf:     closed,
			want:     []GroupName{"bob"},
		},
		{
			name:     "staff member joins role groups",
			identity: domain.Identity{Name: "clerk", Role: domain.RoleStaffMember},
			conf:     active,
			want:     []GroupName{"clerk", "c-1", GroupStaffMembers, GroupHosts},
		},
		{
			name:     "judge joins hosts",
			identity: domain.Identity{Name: "judge", Role: domain.RoleJudge},
			conf:     active,
			want:     []GroupName{"judge", "c-1", GroupHosts},
		},
		{
			name:     "officer without conference",
			identity: domain.Identity{Name: "vho", Role: domain.RoleVHOfficer},
			want:     []GroupName{"vho", GroupVHOfficers},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupsFor(tt.identity, tt.conf)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
