package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ivanoskov/payout_bot/internal/amount"
	"github.com/ivanoskov/payout_bot/internal/model"
	"github.com/ivanoskov/payout_bot/internal/validate"
)

const (
	keyEntries      = "entries"
	keyPending      = "pending_entry"
	keyPendingLines = "pending_lines"

	// MaxBatchEntries - максимум получателей в одном пакете
	MaxBatchEntries = 50
)

// Управляющие слова шага ввода пакета
const (
	batchDone   = "DONE"
	batchList   = "LIST"
	batchClear  = "CLEAR"
	batchCancel = "CANCEL"
)

func (e *Engine) startBatch(_ context.Context, sess *model.Session) (*Reply, error) {
	if err := sess.SetField(keyEntries, model.BatchEntries{}); err != nil {
		return nil, err
	}
	sess.Step = model.At(model.FlowBatch, model.StepEntries)
	return reply(fmt.Sprintf(
		"📦 Batch payment (%s)\n\nSend recipients one per line as: email amount\nExample:\nalice@example.com 10\nbob@example.com 5.5\n\n%s",
		e.batchCurrency, batchHelp())), nil
}

func batchHelp() string {
	return fmt.Sprintf("Commands: %s to review and send, %s to show entries, %s to remove all, %s to abort. Up to %d recipients.",
		batchDone, batchList, batchClear, batchCancel, MaxBatchEntries)
}

func batchEntriesOf(sess *model.Session) (model.BatchEntries, error) {
	var entries model.BatchEntries
	if _, err := sess.Field(keyEntries, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// batchTotal суммирует записи; записи пакета всегда проходят ParseDisplay при добавлении
func batchTotal(entries model.BatchEntries) decimal.Decimal {
	total := decimal.Zero
	for _, en := range entries {
		if v, err := decimal.NewFromString(en.Amount); err == nil {
			total = total.Add(v)
		}
	}
	return total
}

func (e *Engine) batchListing(entries model.BatchEntries) string {
	if len(entries) == 0 {
		return "📋 No recipients added yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Recipients (%d):\n", len(entries))
	for i, en := range entries {
		fmt.Fprintf(&b, "%d. %s: %s %s\n", i+1, en.Email, en.Amount, e.batchCurrency)
	}
	fmt.Fprintf(&b, "\nTotal: %s %s", batchTotal(entries).String(), e.batchCurrency)
	return b.String()
}

func (e *Engine) batchEntries(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	text := strings.TrimSpace(in.Text)
	entries, err := batchEntriesOf(sess)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(text) {
	case batchDone:
		if len(entries) == 0 {
			return reply("❌ Add at least one recipient before sending.\n\n" + batchHelp()), nil
		}
		sess.Step = model.At(model.FlowBatch, model.StepConfirm)
		return e.batchSummary(sess)
	case batchList:
		return reply(e.batchListing(entries) + "\n\n" + batchHelp()), nil
	case batchClear:
		if err := sess.SetField(keyEntries, model.BatchEntries{}); err != nil {
			return nil, err
		}
		return reply("🗑 All recipients removed.\n\n" + batchHelp()), nil
	case batchCancel:
		return e.cancelInHandler(sess), nil
	}

	return e.addBatchLines(sess, entries, strings.Split(text, "\n"), nil)
}

// parseBatchLine разбирает строку "email amount" (разделители: пробелы, запятая, точка с запятой)
func parseBatchLine(line string) (string, string, bool) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';'
	})
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// addBatchLines добавляет строки по очереди. На повторном email ввод приостанавливается
// до ответа пользователя, необработанные строки ждут в scratch.
func (e *Engine) addBatchLines(sess *model.Session, entries model.BatchEntries, lines, notes []string) (*Reply, error) {
	added := 0
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		email, value, ok := parseBatchLine(line)
		if !ok {
			notes = append(notes, fmt.Sprintf("❌ %q: expected format \"email amount\"", line))
			continue
		}
		if !validate.IsValidEmail(email) {
			notes = append(notes, fmt.Sprintf("❌ %s: invalid email", email))
			continue
		}
		a, err := amount.ParseDisplay(value)
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s (%s)", amountProblem(err), email))
			continue
		}

		if idx := entries.Index(email); idx >= 0 {
			if err := setFields(sess, map[string]any{
				keyEntries:      entries,
				keyPending:      model.BatchEntry{Email: entries[idx].Email, Amount: a.String()},
				keyPendingLines: lines[i+1:],
			}); err != nil {
				return nil, err
			}
			sess.Step = model.At(model.FlowBatch, model.StepDuplicate)
			notes = append(notes, fmt.Sprintf("⚠️ %s is already in the list with %s %s. Update the amount to %s %s? (YES / NO)",
				entries[idx].Email, entries[idx].Amount, e.batchCurrency, a.String(), e.batchCurrency))
			return reply(strings.Join(notes, "\n"),
				[]Button{inputButton("✅ Yes, update", "YES"), inputButton("↩️ No, keep", "NO")}), nil
		}

		if len(entries) >= MaxBatchEntries {
			notes = append(notes, fmt.Sprintf("❌ %s: the batch is limited to %d recipients", email, MaxBatchEntries))
			continue
		}

		entries = append(entries, model.BatchEntry{Email: email, Amount: a.String()})
		added++
		note := fmt.Sprintf("✅ Added %s: %s %s", email, a.String(), e.batchCurrency)
		if s := validate.SuggestEmailCorrection(email); s.HasTypo {
			note += fmt.Sprintf(" (⚠️ did you mean %s?)", s.Suggestion)
		}
		notes = append(notes, note)
	}

	if added > 0 {
		if err := sess.SetField(keyEntries, entries); err != nil {
			return nil, err
		}
	}
	sess.ClearFields(keyPending, keyPendingLines)
	sess.Step = model.At(model.FlowBatch, model.StepEntries)

	if len(notes) == 0 {
		notes = append(notes, "❌ Nothing to add.")
	}
	status := fmt.Sprintf("%d recipient(s), total %s %s. Add more or type %s.",
		len(entries), batchTotal(entries).String(), e.batchCurrency, batchDone)
	return reply(strings.Join(notes, "\n") + "\n\n" + status + "\n" + batchHelp()), nil
}

func (e *Engine) batchDuplicate(_ context.Context, sess *model.Session, in Input) (*Reply, error) {
	pending, err := field[model.BatchEntry](sess, keyPending)
	if err != nil {
		return nil, err
	}
	var rest []string
	if _, err := sess.Field(keyPendingLines, &rest); err != nil {
		return nil, err
	}
	entries, err := batchEntriesOf(sess)
	if err != nil {
		return nil, err
	}

	var note string
	answer := strings.ToUpper(strings.TrimSpace(in.Text))
	if in.Action == ActionConfirm || answer == "YES" || answer == "Y" {
		if idx := entries.Index(pending.Email); idx >= 0 {
			entries[idx].Amount = pending.Amount
		}
		if err := sess.SetField(keyEntries, entries); err != nil {
			return nil, err
		}
		note = fmt.Sprintf("✅ Updated %s: %s %s", pending.Email, pending.Amount, e.batchCurrency)
	} else {
		idx := entries.Index(pending.Email)
		kept := pending.Amount
		if idx >= 0 {
			kept = entries[idx].Amount
		}
		note = fmt.Sprintf("↩️ Kept %s: %s %s", pending.Email, kept, e.batchCurrency)
	}

	return e.addBatchLines(sess, entries, rest, []string{note})
}

func (e *Engine) batchSummary(sess *model.Session) (*Reply, error) {
	entries, err := batchEntriesOf(sess)
	if err != nil {
		return nil, err
	}
	return reply("✅ Confirm batch payment\n\n"+e.batchListing(entries)+"\n\nPlease confirm:", confirmButtons()), nil
}

func (e *Engine) batchConfirm(ctx context.Context, sess *model.Session, in Input) (*Reply, error) {
	switch decision(in) {
	case ActionConfirm:
	case ActionCancel:
		return e.cancelInHandler(sess), nil
	default:
		r, err := e.batchSummary(sess)
		if err != nil {
			return nil, err
		}
		return reprompt(msgConfirmOrCancel, r), nil
	}

	entries, err := batchEntriesOf(sess)
	if err != nil {
		return nil, err
	}
	transfers := make([]model.BatchTransfer, 0, len(entries))
	for _, en := range entries {
		// каждая сумма переводится в базовые единицы отдельно и ровно один раз
		a, err := amount.ParseDisplay(en.Amount)
		if err != nil {
			return nil, fmt.Errorf("batch entry %s: %w", en.Email, err)
		}
		transfers = append(transfers, model.BatchTransfer{
			Email:    en.Email,
			Amount:   a.BaseUnits(),
			Currency: e.batchCurrency,
		})
	}

	results, err := e.api.SendBatch(ctx, sess.Token, transfers)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	e.invalidateBalances(sess.UserID)

	amounts := make(map[string]string, len(entries))
	for _, en := range entries {
		amounts[strings.ToLower(en.Email)] = en.Amount
	}

	ok := 0
	var b strings.Builder
	for _, r := range results {
		value := amounts[strings.ToLower(r.Email)]
		if r.Failed() {
			fmt.Fprintf(&b, "❌ %s: %s %s (%s)\n", r.Email, value, e.batchCurrency, r.Error)
			continue
		}
		ok++
		fmt.Fprintf(&b, "✅ %s: %s %s (%s)\n", r.Email, value, e.batchCurrency, batchStatus(r))
	}

	header := fmt.Sprintf("📦 Batch payment submitted: %d of %d succeeded\n\n", ok, len(results))
	if ok < len(results) {
		e.metrics.FlowEvent(string(model.FlowBatch), "partial")
	}
	return e.complete(sess, header+b.String()), nil
}

func batchStatus(r model.BatchResult) string {
	if r.Status == "" {
		return "pending"
	}
	return r.Status
}
