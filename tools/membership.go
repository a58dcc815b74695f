package main

import (
	"chat-presence/domain"
	"chat-presence/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: membership [-db path] <command> [args]

commands:
  list <room>           participants of a room
  rooms <user>          rooms of a user
  add <room> <user>     add a participant
  remove <room> <user>  remove a participant`

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLogger(nil))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewParticipantRepository(db, slog.New(slog.DiscardHandler))
	if err := execute(context.Background(), repository, os.Stdout, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func execute(ctx context.Context, repository repositories.IParticipantRepository, out io.Writer, args []string) error {
	switch {
	case args[0] == "list" && len(args) == 2:
		room, err := parseRoom(args[1])
		if err != nil {
			return err
		}
		participants, err := repository.ListParticipants(ctx, room)
		if err != nil {
			return err
		}
		renderParticipants(out, participants)
		return nil
	case args[0] == "rooms" && len(args) == 2:
		rooms, err := repository.RoomsForUser(ctx, domain.UserID(args[1]))
		if err != nil {
			return err
		}
		table := newTable(out, "Room")
		for _, room := range rooms {
			table.Append([]string{strconv.Itoa(int(room))})
		}
		table.Render()
		return nil
	case args[0] == "add" && len(args) == 3:
		room, err := parseRoom(args[1])
		if err != nil {
			return err
		}
		if err := repository.AddParticipant(ctx, room, domain.UserID(args[2]), time.Now().UTC()); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s added to room %d\n", args[2], room)
		return nil
	case args[0] == "remove" && len(args) == 3:
		room, err := parseRoom(args[1])
		if err != nil {
			return err
		}
		if err := repository.RemoveParticipant(ctx, room, domain.UserID(args[2])); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s removed from room %d\n", args[2], room)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args, usage)
	}
}

func parseRoom(s string) (domain.RoomID, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id %q", s)
	}
	return domain.RoomID(id), nil
}

func renderParticipants(out io.Writer, participants []domain.Participant) {
	table := newTable(out, "User", "Joined At", "Last Read At")
	for _, p := range participants {
		lastRead := "-"
		if p.LastReadAt != nil {
			lastRead = p.LastReadAt.Format(time.DateTime)
		}
		table.Append([]string{string(p.User), p.JoinedAt.Format(time.DateTime), lastRead})
	}
	table.Render()
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
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
