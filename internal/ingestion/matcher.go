package ingestion

import "fmt"

// Match pairs one scene with its metadata record. Record is nil when no row
// matched; the scene is still ingested with placeholder metadata.
type Match struct {
	Scene  Scene
	Record *MetadataRecord
}

// MatchScenes reconciles scene-graph entries with metadata rows. Matching is
// case-sensitive and exact, evaluated in priority order across all rows:
// fileName==name, then fileName==id, then title==id, then title==name.
// Unmatched scenes and out-of-range coordinates produce warnings, never
// errors: a single cosmetic metadata gap must not reject the whole batch.
func MatchScenes(scenes []Scene, records []MetadataRecord) ([]Match, []string) {
	matches := make([]Match, 0, len(scenes))
	var warnings []string

	for _, scene := range scenes {
		rec := findRecord(scene, records)
		matches = append(matches, Match{Scene: scene, Record: rec})

		if rec == nil {
			warnings = append(warnings, fmt.Sprintf(
				"scene %q has no metadata row; ingested with fallback floor and empty title", scene.ID))
			continue
		}

		if rec.X < 0 || rec.X > 100 || rec.Y < 0 || rec.Y > 100 {
			warnings = append(warnings, fmt.Sprintf(
				"scene %q has coordinates outside [0,100] (x=%g, y=%g); stored unmodified",
				scene.ID, rec.X, rec.Y))
		}
	}

	return matches, warnings
}

func findRecord(scene Scene, records []MetadataRecord) *MetadataRecord {
	predicates := []func(MetadataRecord) bool{
		func(r MetadataRecord) bool { return r.FileName == scene.Name },
		func(r MetadataRecord) bool { return r.FileName == scene.ID },
		func(r MetadataRecord) bool { return r.Title == scene.ID && r.Title != "" },
		func(r MetadataRecord) bool { return r.Title == scene.Name && r.Title != "" },
	}

	for _, match := range predicates {
		for i := range records {
			if match(records[i]) {
				return &records[i]
			}
		}
	}

	return nil
}
