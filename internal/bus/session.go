package bus

import (
	"time"

	"github.com/lestrrat-go/strftime"
)

// sessionDirPattern names the per-run session directory. The name is chosen
// once, when the System is built (System.SessionDir). The System creates no
// directory and writes no files itself, and terminals write nothing into it
// on shutdown: the CLI creates the directory after Stop and writes the merged
// system log and the bus-monitor log into it. Using strftime here mirrors the
// teacher's own use of it for formatting configurable timestamp strings.
const sessionDirPattern = "run-%Y-%m-%dT%H-%M-%SZ"

// SessionDirName formats the session directory name for time t, in UTC.
func SessionDirName(t time.Time) string {
	name, err := strftime.Format(sessionDirPattern, t.UTC())
	if err != nil {
		return "run-" + t.UTC().Format("2006-01-02T15-04-05Z")
	}
	return name
}
