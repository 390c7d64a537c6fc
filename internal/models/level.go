package models

// Level is the traveller rank shown on a profile.
type Level string

const (
	LevelNovice     Level = "novice"
	LevelExplorer   Level = "explorer"
	LevelWanderer   Level = "wanderer"
	LevelAdventurer Level = "adventurer"
	LevelMaster     Level = "master"
)

type levelThreshold struct {
	level       Level
	publicTrips int64
	comments    int64
}

// Highest first. Both counts must reach the pair.
var levelThresholds = []levelThreshold{
	{LevelMaster, 10, 100},
	{LevelAdventurer, 6, 50},
	{LevelWanderer, 3, 20},
	{LevelExplorer, 1, 5},
}

// LevelFor computes the level from the number of public trips a user authored
// and the number of comments they wrote. It is never persisted.
func LevelFor(publicTrips, comments int64) Level {
	for _, t := range levelThresholds {
		if publicTrips >= t.publicTrips && comments >= t.comments {
			return t.level
		}
	}
	return LevelNovice
}
