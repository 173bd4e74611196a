package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

func newSignupCmd(opts *globalOptions) *cobra.Command {
	var (
		password   string
		experience string
		tools      []string
	)
	cmd := &cobra.Command{
		Use:   "signup USERNAME",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp := models.Experience(experience)
			if !models.ValidExperience(exp) {
				return fmt.Errorf("--experience must be one of beginner, intermediate, expert")
			}
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			c, err := newClient(opts, false)
			if err != nil {
				return err
			}
			if err := c.signup(cmd.Context(), args[0], pw, exp, tools); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Account %s created, now run `fixbuddy login %s`", args[0], args[0]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVarP(&experience, "experience", "e", "beginner", "DIY experience (beginner, intermediate, expert)")
	cmd.Flags().StringSliceVarP(&tools, "tools", "t", nil, "Tools you own")
	return cmd
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			c, err := newClient(opts, false)
			if err != nil {
				return err
			}
			tok, err := c.login(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			if err := saveToken(opts.tokenPath, tok); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Logged in as "+args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func newDiagnoseCmd(opts *globalOptions) *cobra.Command {
	var (
		imagePath  string
		experience string
		tools      []string
		clarify    string
	)
	cmd := &cobra.Command{
		Use:   "diagnose [DESCRIPTION]",
		Short: "Diagnose a broken item",
		Long: `Describe the problem, attach a photo, or both.

Examples:
  # Describe the problem
  fixbuddy diagnose "my desk lamp flickers when I touch the cord"

  # Photo only
  fixbuddy diagnose --image chair.jpg

  # Answer a follow-up question on a new run
  fixbuddy diagnose "toaster does not heat" --clarify "the light turns on"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := diagnoseRequest{
				Experience:    models.Experience(experience),
				Tools:         tools,
				ClarifyAnswer: clarify,
			}
			if len(args) == 1 {
				req.Description = strings.TrimSpace(args[0])
			}
			if imagePath != "" {
				img, err := encodeImage(imagePath)
				if err != nil {
					return err
				}
				req.ImageBase64 = img
			}
			if req.Description == "" && req.ImageBase64 == "" {
				return fmt.Errorf("give a description, an --image, or both")
			}
			if req.Experience != "" && !models.ValidExperience(req.Experience) {
				return fmt.Errorf("--experience must be one of beginner, intermediate, expert")
			}

			c, err := newClient(opts, true)
			if err != nil {
				return err
			}

			s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
			s.Suffix = " Diagnosing..."
			s.Start()
			res, err := c.diagnose(cmd.Context(), req)
			s.Stop()
			if err != nil {
				return err
			}
			return displayResult(cmd.OutOrStdout(), res, opts.output)
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Photo of the item (jpeg, png, webp)")
	cmd.Flags().StringVarP(&experience, "experience", "e", "", "Override your profile's experience for this run")
	cmd.Flags().StringSliceVarP(&tools, "tools", "t", nil, "Tools available for this repair")
	cmd.Flags().StringVar(&clarify, "clarify", "", "Answer to a follow-up question")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your recent diagnoses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			list, err := c.listDiagnoses(cmd.Context())
			if err != nil {
				return err
			}
			return displayList(cmd.OutOrStdout(), list, opts.output)
		},
	}
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a stored diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			res, err := c.getDiagnosis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return displayResult(cmd.OutOrStdout(), res, opts.output)
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, true)
			if err != nil {
				return err
			}
			if err := c.deleteDiagnosis(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted "+args[0])
			return nil
		},
	}
}

// passwordOrPrompt reads one line from stdin when no password flag is set.
func passwordOrPrompt(cmd *cobra.Command, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

// encodeImage reads the photo as a base64 data URL.
func encodeImage(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(b)
	switch mime {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
	default:
		return "", fmt.Errorf("%s is not a supported image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
