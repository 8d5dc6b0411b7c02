// Command viewer dumps rooms and message history from a Badger store
// in read-only mode, for debugging a running or stopped instance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// Local copies of the on-disk record shapes to keep the viewer
// independent from the engine packages.
type roomRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	CreatorID      string   `json:"creator_id"`
	Members        []string `json:"members"`
	CreatedAt      int64    `json:"created_at"`
}

type messageRecord struct {
	ID         string `json:"id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at"`
}

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	roomName := flag.String("room", "", "Normalized room name to dump messages for")
	flag.Parse()

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *roomName == "" {
		dumpRooms(db)
		return
	}
	dumpMessages(db, *roomName)
}

func dumpRooms(db *badger.DB) {
	color.New(color.BgBlack, color.FgGreen).Println("  ====== Rooms ======")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Creator", "Members", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("room:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var rec roomRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(it.Item().Key()), err)
					return nil
				}
				table.Append([]string{
					rec.ID[:8],
					rec.Name,
					rec.CreatorID[:8],
					fmt.Sprintf("%d", len(rec.Members)),
					time.Unix(0, rec.CreatedAt).UTC().Format(time.RFC822),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func dumpMessages(db *badger.DB, normalizedName string) {
	var roomID string
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("roomname:" + normalizedName))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			roomID = string(v)
			return nil
		})
	})
	if err != nil {
		log.Fatalf("Room %q not found: %v", normalizedName, err)
	}

	color.New(color.BgBlack, color.FgGreen).Printf("  ====== #%s ======\n", normalizedName)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Author", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("msg:" + roomID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var rec messageRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(it.Item().Key()), err)
					return nil
				}
				table.Append([]string{
					time.Unix(0, rec.CreatedAt).UTC().Format("15:04:05"),
					rec.AuthorName,
					rec.Content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}
