package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/aws"
	"github.com/ashokba6266/s3-vpc-endpoint/internal/sequencer"
)

var cleanupYes bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete all managed resources",
	Long: `Deletes every resource tracked in the state document, newest first:
instances, IAM role and profile, bucket policy, bucket, endpoint, then the
network. Deletion keeps going past individual failures so one stuck resource
does not strand the rest; whatever could not be deleted stays in state for
the next run.

When the sweep empties the state, the state document itself is removed.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupYes, "yes", false, "Skip interactive confirmation")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRun(ctx, "cleanup", true)
	if err != nil {
		return err
	}
	defer r.close()

	if r.store.Empty() {
		fmt.Println("Nothing to clean up.")
		return nil
	}

	fmt.Printf("This will delete %d tracked resource(s) in region %s.\n", len(r.store.Records()), r.cfg.Region)
	if !cleanupYes {
		fmt.Print("Do you want to continue? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return &ConfirmationDeniedError{}
		}
	}

	seq := sequencer.New(r.store, r.reporter)
	seq.OnEvent(printEvent)

	err = seq.Teardown(ctx, aws.AllSteps(r.clients, r.cfg))
	r.finish()
	if err != nil {
		var cycle *sequencer.CycleError
		if errors.As(err, &cycle) {
			return err
		}
		return &PartialError{Reason: "cleanup incomplete", Err: err}
	}

	fmt.Println("\nCleanup complete. All resources have been deleted.")
	return nil
}
