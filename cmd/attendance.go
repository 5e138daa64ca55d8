package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/veriface/internal/attendance"
	"github.com/andresmejia3/veriface/internal/types"
	"github.com/spf13/cobra"
)

var attendanceLimit int

var attendanceCmd = &cobra.Command{
	Use:   "attendance [identity_key]",
	Short: "Show recent attendance, for everyone or one identity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		var key types.IdentityKey
		if len(args) == 1 {
			key = types.IdentityKey(args[0])
		}

		recs, err := DB.ListAttendance(cmd.Context(), key, attendanceLimit)
		if err != nil {
			return fail("Failed to load attendance", err, nil)
		}
		policy, err := attendancePolicy()
		if err != nil {
			return fail("Invalid attendance settings", err, nil)
		}
		writeAttendance(os.Stdout, policy, recs)
		return nil
	},
}

func init() {
	attendanceCmd.Flags().IntVarP(&attendanceLimit, "limit", "n", 50, "Maximum records to show (0 for all)")
	rootCmd.AddCommand(attendanceCmd)
}

func attendancePolicy() (*attendance.CutoffPolicy, error) {
	loc, err := Cfg.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := Cfg.Cutoff()
	if err != nil {
		return nil, err
	}
	return attendance.NewCutoffPolicy(loc, hour, minute)
}

func writeAttendance(out io.Writer, policy *attendance.CutoffPolicy, recs []types.AttendanceRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No attendance recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tDATE\tTIME\tSTATUS\tSCORE")
	fmt.Fprintln(w, "--------\t----\t----\t------\t-----")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\n", r.Identity,
			r.At.In(policy.Location).Format("2006-01-02"), policy.Clock(r.At), r.Status, r.Score)
	}
	w.Flush()

	s := attendance.Summarize(recs)
	fmt.Fprintf(out, "\n%d check-ins: %d present, %d late (%d%% late)\n", s.Total, s.Present, s.Late, s.LatePercent())
}
