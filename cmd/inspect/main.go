package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"secret-santa/internal"
	"secret-santa/repositories"
)

// inspect prints the rooms of a snapshot. Assignments are shown only with --reveal.
func main() {
	backend := pflag.StringP("backend", "b", internal.StorageBadger, "Snapshot backend: badger or file")
	path := pflag.StringP("path", "p", "./data/badger", "Badger directory or snapshot file")
	reveal := pflag.Bool("reveal", false, "Show who gives to whom")
	pflag.Parse()

	logger := logs.GetLoggerFromString("ERROR")
	var repository repositories.ISnapshotRepository
	switch *backend {
	case internal.StorageFile:
		repository = repositories.NewFileSnapshotRepository(*path, logger)
	case internal.StorageBadger:
		db, err := badger.Open(badger.DefaultOptions(*path).
			WithReadOnly(true).
			WithBypassLockGuard(true).
			WithLogger(nil))
		if err != nil {
			log.Fatal("Error while opening Badger: ", err)
		}
		defer db.Close()
		repository = repositories.NewBadgerSnapshotRepository(db, logger)
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	snapshot, err := repository.Load()
	if err != nil {
		log.Fatal(err)
	}
	if len(snapshot.Rooms) == 0 {
		color.Yellow.Println("No room saved yet")
		return
	}

	rooms := newTable([]string{"ID", "Title", "Code", "Budget", "Exchange", "Members", "Raffle", "Active"})
	for _, r := range snapshot.Rooms {
		rooms.Append([]string{
			r.ID,
			r.Title,
			r.JoinCode,
			strconv.Itoa(r.Budget),
			r.GiftDate,
			strconv.Itoa(len(r.Participants)),
			flag(r.AssignmentDone, "done", "pending"),
			flag(r.Active, "yes", "no"),
		})
	}
	color.Bold.Println("Rooms")
	rooms.Render()

	for _, r := range snapshot.Rooms {
		fmt.Println()
		color.Cyan.Printf("%s (%s)\n", r.Title, r.ID)
		members := newTable([]string{"User", "Name", "Handle", "Role", "Wishlist", "Avoid", "Gives to"})
		names := lo.SliceToMap(r.Participants, func(p repositories.ParticipantRecord) (int64, string) {
			return p.UserID, p.DisplayName
		})
		for _, p := range r.Participants {
			members.Append([]string{
				strconv.FormatInt(p.UserID, 10),
				p.DisplayName,
				p.Handle,
				flag(p.UserID == r.AdminID, "organizer", ""),
				truncate(p.Wishlist, 30),
				truncate(p.AntiWishlist, 30),
				target(p, names, *reveal),
			})
		}
		members.Render()
	}
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func target(p repositories.ParticipantRecord, names map[int64]string, reveal bool) string {
	switch {
	case p.TargetID == nil:
		return "-"
	case !reveal:
		return "hidden"
	default:
		return names[*p.TargetID]
	}
}

func flag(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
