package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/vmihailenco/msgpack/v5"
)

// InspectMapper renders the keys written by the repositories for the Badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return row
	}

	switch parts[0] {
	case "msg":
		var record messageRecord
		if err := msgpack.Unmarshal(val, &record); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("[%s] room %s, %s: %s",
			time.Unix(0, record.At).UTC().Format("15:04:05"), parts[1], record.Author, record.Content)
		if len(record.Censored) > 0 {
			row.Scores = "censored:" + strings.Join(record.Censored, ",")
		}
	case "room":
		var record participantRecord
		if err := msgpack.Unmarshal(val, &record); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MEMBER"
		row.Detail = fmt.Sprintf("%s joined room %s at %s", parts[3], parts[1],
			time.Unix(0, record.JoinedAt).UTC().Format(time.RFC3339))
		if record.LastReadAt != nil {
			row.Detail += ", read at " + time.Unix(0, *record.LastReadAt).UTC().Format(time.RFC3339)
		}
	case "user":
		row.Type = "INDEX"
		row.Detail = fmt.Sprintf("%s is a member of room %s", parts[1], parts[3])
	}
	return row
}
