package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keyvault/internal/client/models"
	"github.com/dmitrijs2005/keyvault/internal/common"
)

var errUsage = errors.New("usage")

// entryKinds maps the add/update argument to the prompt for its details.
func (a *App) entryKinds() map[string]func(context.Context) (models.TypedEntry, error) {
	return map[string]func(context.Context) (models.TypedEntry, error){
		"note":  a.addNoteDetails,
		"login": a.addLoginDetails,
		"card":  a.addCreditCardDetails,
	}
}

// Add prompts for a new entry of the given kind and stores it encrypted.
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: add note|login|card")
		return errUsage
	}
	details, ok := a.entryKinds()[args[0]]
	if !ok {
		a.printf("Unknown entry kind %q. Use note, login or card.", args[0])
		return errUsage
	}
	if !a.isUnlocked() {
		a.printf("Unlock the vault first.")
		return common.ErrVaultLocked
	}

	payload, err := a.inputPayload(ctx, details)
	if err != nil {
		a.printf("error: %v", err)
		return err
	}

	rec, err := a.vault.AddRecord(ctx, payload)
	if err != nil {
		a.printf("Could not save: %v", err)
		return err
	}
	a.printf("Saved as %s", rec.ID)
	return nil
}

// Update replaces an entry with freshly entered content. The kind is kept
// from the stored entry unless the stored payload is not an envelope.
func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: update <id>")
		return errUsage
	}
	cur, err := a.vault.Record(args[0])
	if err != nil {
		a.printf("error: %v", err)
		return err
	}

	kind := "note"
	if env, err := models.ParsePayload(cur.Payload); err == nil {
		kind = kindOf(env.Type)
	}
	payload, err := a.inputPayload(ctx, a.entryKinds()[kind])
	if err != nil {
		a.printf("error: %v", err)
		return err
	}

	if _, err := a.vault.UpdateRecord(ctx, cur.ID, payload); err != nil {
		a.printf("Could not save: %v", err)
		return err
	}
	a.printf("Updated %s", cur.ID)
	return nil
}

func kindOf(t models.EntryType) string {
	switch t {
	case models.EntryTypeLogin:
		return "login"
	case models.EntryTypeCreditCard:
		return "card"
	default:
		return "note"
	}
}

func (a *App) addNoteDetails(ctx context.Context) (models.TypedEntry, error) {
	text, err := GetMultiline(a.reader, "Enter note text (double Enter to finish):", a.out)
	if err != nil {
		return nil, err
	}
	return &models.Note{Text: text}, nil
}

func (a *App) addCreditCardDetails(ctx context.Context) (models.TypedEntry, error) {
	number, err := GetSimpleText(a.reader, "Enter card number", a.out)
	if err != nil {
		return nil, err
	}
	expiration, err := GetSimpleText(a.reader, "Enter expiration", a.out)
	if err != nil {
		return nil, err
	}
	cvv, err := GetSimpleText(a.reader, "Enter CVV", a.out)
	if err != nil {
		return nil, err
	}
	holder, err := GetSimpleText(a.reader, "Enter card holder", a.out)
	if err != nil {
		return nil, err
	}
	return &models.CreditCard{Number: number, Expiration: expiration, CVV: cvv, Holder: holder}, nil
}

func (a *App) addLoginDetails(ctx context.Context) (models.TypedEntry, error) {
	username, err := GetSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return nil, err
	}
	password, err := GetSimpleText(a.reader, "Enter password", a.out)
	if err != nil {
		return nil, err
	}
	url, err := GetSimpleText(a.reader, "Enter URL", a.out)
	if err != nil {
		return nil, err
	}
	return &models.Login{Username: username, Password: password, URL: url}, nil
}

// inputPayload gathers the common envelope data (title, metadata), the
// typed details from rest, and encodes them as a record payload.
func (a *App) inputPayload(ctx context.Context, rest func(ctx context.Context) (models.TypedEntry, error)) (string, error) {
	title, err := GetSimpleText(a.reader, "Enter title", a.out)
	if err != nil {
		return "", fmt.Errorf("get title: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload, err := rest(ctx)
	if err != nil {
		return "", err
	}

	md, err := GetMetadata(a.reader, a.out)
	if err != nil {
		return "", err
	}
	metadata, err := models.MetadataFromString(md)
	if err != nil {
		return "", err
	}

	env, err := models.Wrap(payload.GetType(), title, metadata, payload)
	if err != nil {
		return "", err
	}
	return env.Payload()
}

// List prints id, kind and title of every decrypted entry.
func (a *App) List(ctx context.Context) error {
	recs, err := a.vault.Records()
	if err != nil {
		a.printf("error: %v", err)
		return err
	}
	if len(recs) == 0 {
		a.printf("No entries.")
	}
	for _, r := range recs {
		env, err := models.ParsePayload(r.Payload)
		if err != nil {
			a.printf("%s  %-11s  %s", r.ID, "raw", firstLine(r.Payload))
			continue
		}
		a.printf("%s  %-11s  %s", r.ID, env.Type, env.Title)
	}
	a.printFailures()
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 40 {
		line = line[:40] + "..."
	}
	return line
}

// Show prints one entry with all of its fields.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: show <id>")
		return errUsage
	}
	rec, err := a.vault.Record(args[0])
	if err != nil {
		a.printf("error: %v", err)
		return err
	}

	envelope, err := models.ParsePayload(rec.Payload)
	if err != nil {
		a.printf("%s", rec.Payload)
		return nil
	}

	a.printf("%s", envelope.Title)

	x, err := envelope.Unwrap()
	if err != nil {
		a.printf("error: %v", err)
		return err
	}

	switch item := x.(type) {
	case models.Note:
		a.printf("Note: %s", item.Text)
	case models.CreditCard:
		a.printf("Number: %s", item.Number)
		a.printf("Expiration: %s", item.Expiration)
		a.printf("CVV: %s", item.CVV)
		a.printf("Holder: %s", item.Holder)
	case models.Login:
		a.printf("Username: %s", item.Username)
		a.printf("Password: %s", item.Password)
		a.printf("URL: %s", item.URL)
	default:
		a.printf("Details: %v", item)
	}

	for _, md := range envelope.Metadata {
		a.printf("%s: %s", md.Name, md.Value)
	}
	a.printf("Updated: %s", rec.UpdatedAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// Delete removes an entry by id.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: delete <id>")
		return errUsage
	}
	if err := a.vault.DeleteRecord(ctx, args[0]); err != nil {
		a.printf("error: %v", err)
		return err
	}
	a.printf("Deleted %s", args[0])
	return nil
}
