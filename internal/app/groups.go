package app

import "github.com/dkeye/Hearing/internal/domain"

const (
	GroupVHOfficers   GroupName = "VHOfficers"
	GroupStaffMembers GroupName = "StaffMembers"
	GroupHosts        GroupName = "Hosts"
)

// IdentityGroup is the direct-addressing group of an identity name.
func IdentityGroup(name string) GroupName {
	return GroupName(domain.Identity{Name: name}.GroupName())
}

func ConferenceGroup(conferenceID string) GroupName {
	return GroupName(conferenceID)
}

// GroupsFor returns the groups a newly connected identity joins.
// conf may be nil when the identity has no resolvable conference.
func GroupsFor(identity domain.Identity, conf *domain.Conference) []GroupName {
	groups := []GroupName{IdentityGroup(identity.Name)}
	if conf != nil && conf.IsActive() {
		groups = append(groups, ConferenceGroup(conf.ID))
	}
	switch identity.Role {
	case domain.RoleVHOfficer:
		groups = append(groups, GroupVHOfficers)
	case domain.RoleStaffMember:
		groups = append(groups, GroupStaffMembers, GroupHosts)
	case domain.RoleJudge:
		groups = append(groups, GroupHosts)
	}
	return groups
}
