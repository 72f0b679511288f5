package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/internal/clock"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Manage job attachments",
	Long: `Manage photos and voice notes attached to jobs. Attachments stay on
this device; they are never uploaded.`,
}

var attachAddCmd = &cobra.Command{
	Use:   "add [job-id] [file]",
	Short: "Attach a file to a job",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttachAdd,
}

var attachListCmd = &cobra.Command{
	Use:     "list [job-id]",
	Aliases: []string{"ls"},
	Short:   "List a job's attachments",
	Args:    cobra.ExactArgs(1),
	RunE:    runAttachList,
}

var attachDeleteCmd = &cobra.Command{
	Use:     "delete [attachment-id]",
	Aliases: []string{"rm"},
	Short:   "Delete an attachment",
	Args:    cobra.ExactArgs(1),
	RunE:    runAttachDelete,
}

var (
	attachKind    string
	attachCaption string
)

func init() {
	attachAddCmd.Flags().StringVarP(&attachKind, "kind", "k", "", "Attachment kind (photo, voice_note); inferred from the file extension when omitted")
	attachAddCmd.Flags().StringVarP(&attachCaption, "caption", "c", "", "Caption")

	attachCmd.AddCommand(attachAddCmd)
	attachCmd.AddCommand(attachListCmd)
	attachCmd.AddCommand(attachDeleteCmd)
}

func runAttachAdd(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	kind := model.AttachmentKind(attachKind)
	if attachKind == "" {
		kind = inferKind(args[1])
	}
	switch kind {
	case model.AttachmentPhoto, model.AttachmentVoiceNote:
	default:
		return fmt.Errorf("unknown attachment kind %q", attachKind)
	}

	a := model.Attachment{
		ID:        uuid.New().String(),
		JobID:     j.ID,
		Kind:      kind,
		Payload:   payload,
		Caption:   attachCaption,
		CreatedAt: clock.System().Now().UTC(),
	}

	if err := st.AddAttachment(a); err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}

	fmt.Printf("✓ Attached %s (%s, %d bytes) to %s\n",
		shortID(a.ID), kind, len(payload), shortID(j.ID))
	return nil
}

func runAttachList(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	j, err := findJob(st, args[0])
	if err != nil {
		return err
	}

	atts, err := st.ListAttachments(j.ID)
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}

	if len(atts) == 0 {
		fmt.Printf("No attachments on job %s.\n", shortID(j.ID))
		return nil
	}

	fmt.Printf("\n📎 %s [%s]\n", shortID(j.ID), j.ClientName)
	fmt.Println(strings.Repeat("─", 60))
	for _, a := range atts {
		caption := a.Caption
		if caption == "" {
			caption = "-"
		}
		fmt.Printf("  %-8s  %-10s  %8d bytes  %s\n",
			shortID(a.ID), a.Kind, len(a.Payload), caption)
	}
	fmt.Println()
	return nil
}

func runAttachDelete(cmd *cobra.Command, args []string) error {
	st, err := store.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.DeleteAttachment(args[0]); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	fmt.Printf("✓ Attachment %s deleted\n", shortID(args[0]))
	return nil
}

func inferKind(path string) model.AttachmentKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".heic", ".webp":
		return model.AttachmentPhoto
	case ".m4a", ".mp3", ".ogg", ".wav", ".opus":
		return model.AttachmentVoiceNote
	default:
		return model.AttachmentPhoto
	}
}
