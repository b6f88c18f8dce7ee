package playersync

import "time"

// Field names one controllable or displayable attribute of a device card.
type Field string

const (
	FieldName         Field = "name"
	FieldOnline       Field = "online"
	FieldPlaying      Field = "playing"
	FieldVolume       Field = "volume"
	FieldBattery      Field = "battery"
	FieldActiveCard   Field = "activeCard"
	FieldChapterTitle Field = "chapterTitle"
	FieldTrackTitle   Field = "trackTitle"
)

// allFields is the diff order; it determines the order fields appear in
// ApplyFields maps but carries no other meaning.
var allFields = []Field{
	FieldName,
	FieldOnline,
	FieldPlaying,
	FieldVolume,
	FieldBattery,
	FieldActiveCard,
	FieldChapterTitle,
	FieldTrackTitle,
}

// DeviceSnapshot is one poll cycle's reported state for one device. Optional
// fields are nil when the backend has no data; unknown JSON fields from the
// status endpoint are ignored.
type DeviceSnapshot struct {
	DeviceID     string    `json:"deviceId"`
	Name         string    `json:"name"`
	Online       bool      `json:"online"`
	Playing      bool      `json:"playing"`
	Volume       int       `json:"volume"`
	BatteryLevel *int      `json:"batteryLevel"`
	ActiveCard   *string   `json:"activeCard"`
	ChapterTitle *string   `json:"chapterTitle"`
	TrackTitle   *string   `json:"trackTitle"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// fieldValue returns the renderable value of one field. Nil pointers come
// back as untyped nil so renderers can show a placeholder.
func (s *DeviceSnapshot) fieldValue(f Field) interface{} {
	switch f {
	case FieldName:
		return s.Name
	case FieldOnline:
		return s.Online
	case FieldPlaying:
		return s.Playing
	case FieldVolume:
		return s.Volume
	case FieldBattery:
		if s.BatteryLevel == nil {
			return nil
		}
		return *s.BatteryLevel
	case FieldActiveCard:
		if s.ActiveCard == nil {
			return nil
		}
		return *s.ActiveCard
	case FieldChapterTitle:
		if s.ChapterTitle == nil {
			return nil
		}
		return *s.ChapterTitle
	case FieldTrackTitle:
		if s.TrackTitle == nil {
			return nil
		}
		return *s.TrackTitle
	}
	return nil
}

// setFieldValue writes one field back into the snapshot. Values follow the
// fieldValue convention: untyped nil clears an optional field.
func (s *DeviceSnapshot) setFieldValue(f Field, value interface{}) {
	switch f {
	case FieldName:
		if v, ok := value.(string); ok {
			s.Name = v
		}
	case FieldOnline:
		if v, ok := value.(bool); ok {
			s.Online = v
		}
	case FieldPlaying:
		if v, ok := value.(bool); ok {
			s.Playing = v
		}
	case FieldVolume:
		if v, ok := value.(int); ok {
			s.Volume = v
		}
	case FieldBattery:
		if value == nil {
			s.BatteryLevel = nil
		} else if v, ok := value.(int); ok {
			s.BatteryLevel = &v
		}
	case FieldActiveCard:
		if value == nil {
			s.ActiveCard = nil
		} else if v, ok := value.(string); ok {
			s.ActiveCard = &v
		}
	case FieldChapterTitle:
		if value == nil {
			s.ChapterTitle = nil
		} else if v, ok := value.(string); ok {
			s.ChapterTitle = &v
		}
	case FieldTrackTitle:
		if value == nil {
			s.TrackTitle = nil
		} else if v, ok := value.(string); ok {
			s.TrackTitle = &v
		}
	}
}

// diffFields lists the fields whose rendered value differs between two
// snapshots, in allFields order.
func diffFields(prev, next *DeviceSnapshot) []Field {
	var changed []Field
	for _, f := range allFields {
		if prev.fieldValue(f) != next.fieldValue(f) {
			changed = append(changed, f)
		}
	}
	return changed
}
