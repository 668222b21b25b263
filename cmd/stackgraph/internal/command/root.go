// Copyright 2025 The Kube Resource Orchestrator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package command implements the stackgraph commands.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/release-utils/version"
)

// LogEnv is the environment variable holding the default log level.
const LogEnv = "STACKGRAPH_LOG"

// NewRootCommand returns the stackgraph command with every subcommand.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newOptions())
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackgraph",
		Short: "Deploy stacks of interdependent cloud and Kubernetes resources",
		Long: Highlight("stackgraph [global options] <command>") + "\n\n" +
			"stackgraph resolves the references between the resources of a stack,\n" +
			"orders them in dependency layers and converges them, in parallel,\n" +
			"against the snapshot of the last run.\n",
		Version:       version.GetVersionInfo().GitVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logLevel(cmd, opts.logLevel)
			if err != nil {
				return err
			}
			opts.log = newLogger(cmd.ErrOrStderr(), level)
			ctrl.SetLogger(opts.log)
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	opts.addGlobalFlags(cmd)

	cmd.AddCommand(
		newValidateCommand(opts),
		newPlanCommand(opts),
		newApplyCommand(opts),
		newDestroyCommand(opts),
		newRenderCommand(opts),
		newGraphCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the root command. Colors are disabled when NO_COLOR is set.
func Execute(ctx context.Context) error {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color.NoColor = true
	}
	return NewRootCommand().ExecuteContext(ctx)
}

// Highlight applies a blue color to the given format and arguments.
func Highlight(format string, a ...any) string {
	return color.New(color.FgBlue).Sprintf(format, a...)
}

type customLevelEnabler struct {
	level int
}

func (c customLevelEnabler) Enabled(lvl zapcore.Level) bool {
	return -int(lvl) <= c.level
}

func newLogger(w io.Writer, level int) logr.Logger {
	opts := zap.Options{
		Development: false,
		Level:       customLevelEnabler{level: level},
		TimeEncoder: zapcore.ISO8601TimeEncoder,
		DestWriter:  w,
	}
	return zap.New(zap.UseFlagOptions(&opts))
}

// logLevel returns the --log-level flag when set, the level named by
// STACKGRAPH_LOG otherwise.
func logLevel(cmd *cobra.Command, flagLevel int) (int, error) {
	if cmd.Flags().Changed("log-level") {
		return flagLevel, nil
	}
	env := os.Getenv(LogEnv)
	switch strings.ToLower(env) {
	case "":
		return flagLevel, nil
	case "info":
		return 0, nil
	case "debug":
		return 1, nil
	case "trace":
		return 2, nil
	}
	level, err := strconv.Atoi(env)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q, expected info, debug, trace or a number", LogEnv, env)
	}
	return level, nil
}
