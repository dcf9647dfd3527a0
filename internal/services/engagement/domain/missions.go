package domain

import "fmt"

// MissionStep declares one metric target inside a mission. The metric kind
// is a member of the closed MetricKind set, so matching an incoming action
// to a step is an exact table lookup.
type MissionStep struct {
	ID          string
	Description string
	Metric      MetricKind
	Target      int
}

// MissionRewards declares what full completion yields.
type MissionRewards struct {
	XP      int
	BadgeID string
	Title   string
}

// MissionDefinition declares one mission. Definitions are read-only input
// sourced from the externally supplied catalog.
type MissionDefinition struct {
	ID      string
	Title   string
	Steps   []MissionStep
	Rewards MissionRewards
}

// MissionCatalog is the configured set of joinable missions.
type MissionCatalog struct {
	missions map[string]MissionDefinition
	order    []string
}

// NewMissionCatalog validates and indexes mission definitions.
func NewMissionCatalog(missions []MissionDefinition) (*MissionCatalog, error) {
	catalog := &MissionCatalog{missions: make(map[string]MissionDefinition, len(missions))}
	for _, mission := range missions {
		if mission.ID == "" {
			return nil, fmt.Errorf("mission id is required")
		}
		if _, exists := catalog.missions[mission.ID]; exists {
			return nil, fmt.Errorf("duplicate mission id %q", mission.ID)
		}
		if len(mission.Steps) == 0 {
			return nil, fmt.Errorf("mission %q has no steps", mission.ID)
		}
		stepIDs := make(map[string]bool, len(mission.Steps))
		for _, step := range mission.Steps {
			if step.ID == "" {
				return nil, fmt.Errorf("mission %q has a step without an id", mission.ID)
			}
			if stepIDs[step.ID] {
				return nil, fmt.Errorf("mission %q has duplicate step id %q", mission.ID, step.ID)
			}
			if !KnownMetric(step.Metric) {
				return nil, fmt.Errorf("mission %q step %q has unknown metric %q", mission.ID, step.ID, step.Metric)
			}
			if step.Target <= 0 {
				return nil, fmt.Errorf("mission %q step %q target must be positive", mission.ID, step.ID)
			}
			stepIDs[step.ID] = true
		}
		if mission.Rewards.XP < 0 {
			return nil, fmt.Errorf("mission %q has negative xp reward", mission.ID)
		}
		catalog.missions[mission.ID] = mission
		catalog.order = append(catalog.order, mission.ID)
	}
	return catalog, nil
}

// DefaultMissionCatalog returns the standard mission set shipped with the
// service. Deployments with bespoke missions construct their own catalog.
func DefaultMissionCatalog() *MissionCatalog {
	catalog, err := NewMissionCatalog([]MissionDefinition{
		{
			ID:    "first-week",
			Title: "First Week",
			Steps: []MissionStep{
				{ID: "write-post", Description: "Write your first post", Metric: MetricPosts, Target: 1},
				{ID: "write-comments", Description: "Comment on three discussions", Metric: MetricComments, Target: 3},
				{ID: "follow-someone", Description: "Follow another member", Metric: MetricFollowers, Target: 1},
			},
			Rewards: MissionRewards{XP: 150, BadgeID: "settler", Title: "Settler"},
		},
		{
			ID:    "regular",
			Title: "Regular",
			Steps: []MissionStep{
				{ID: "week-streak", Description: "Visit seven days in a row", Metric: MetricStreakDays, Target: 7},
			},
			Rewards: MissionRewards{XP: 200, Title: "Regular"},
		},
		{
			ID:    "conversation-starter",
			Title: "Conversation Starter",
			Steps: []MissionStep{
				{ID: "write-posts", Description: "Write five posts", Metric: MetricPosts, Target: 5},
				{ID: "earn-likes", Description: "Receive ten likes", Metric: MetricLikesReceived, Target: 10},
			},
			Rewards: MissionRewards{XP: 300, Title: "Conversation Starter"},
		},
	})
	if err != nil {
		// The default catalog is fixed at compile time.
		panic(err)
	}
	return catalog
}

// Definition returns one mission definition by id.
func (c *MissionCatalog) Definition(missionID string) (MissionDefinition, bool) {
	if c == nil {
		return MissionDefinition{}, false
	}
	mission, ok := c.missions[missionID]
	return mission, ok
}

// Definitions returns the catalog's missions in declaration order.
func (c *MissionCatalog) Definitions() []MissionDefinition {
	if c == nil {
		return nil
	}
	missions := make([]MissionDefinition, 0, len(c.order))
	for _, id := range c.order {
		missions = append(missions, c.missions[id])
	}
	return missions
}
