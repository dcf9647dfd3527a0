package domain

import "sort"

// RankName classifies a level range into a display rank.
type RankName string

const (
	RankNovice       RankName = "Novice"
	RankBeginner     RankName = "Beginner"
	RankIntermediate RankName = "Intermediate"
	RankAdvanced     RankName = "Advanced"
	RankExpert       RankName = "Expert"
	RankMaster       RankName = "Master"
	RankLegend       RankName = "Legend"
)

// Levels is a strictly increasing table of cumulative-point thresholds.
// Levels[i] is the minimum total required to hold level i+1; zero points is
// level zero. Level and rank are always derived from points, never stored.
type Levels []int

// DefaultLevels returns the standard level threshold table.
func DefaultLevels() Levels {
	return Levels{100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000, 17000, 23000, 30000, 40000, 55000, 75000}
}

// Level returns the highest level whose threshold the points satisfy.
// It is nondecreasing in points.
func (l Levels) Level(points int) int {
	if points < 0 {
		points = 0
	}
	return sort.SearchInts(l, points+1)
}

// MaxLevel returns the highest attainable level for this table.
func (l Levels) MaxLevel() int {
	return len(l)
}

// NextRankGap returns the points still needed to reach the next level, or
// zero at the top of the table.
func (l Levels) NextRankGap(points int) int {
	level := l.Level(points)
	if level >= len(l) {
		return 0
	}
	gap := l[level] - points
	if gap < 0 {
		return 0
	}
	return gap
}

// rankFloors maps the minimum level for each rank, checked from highest to
// lowest. Ranks never demote because levels never decrease.
var rankFloors = []struct {
	level int
	name  RankName
}{
	{14, RankLegend},
	{12, RankMaster},
	{9, RankExpert},
	{6, RankAdvanced},
	{3, RankIntermediate},
	{1, RankBeginner},
	{0, RankNovice},
}

// Rank returns the display rank for a level. It is nondecreasing in level.
func Rank(level int) RankName {
	if level < 0 {
		level = 0
	}
	for _, floor := range rankFloors {
		if level >= floor.level {
			return floor.name
		}
	}
	return RankNovice
}
