package task

import (
	"fmt"
	"strings"
)

// TaskType identifies the type of task.
type TaskType string

const (
	// TaskTypeShell is a shell command task.
	TaskTypeShell TaskType = "shell"
	// TaskTypeProcess is a process-based task.
	TaskTypeProcess TaskType = "process"
)

// TaskGroup categorizes tasks.
type TaskGroup string

const (
	// TaskGroupBuild contains build-related tasks.
	TaskGroupBuild TaskGroup = "build"
	// TaskGroupTest contains test-related tasks.
	TaskGroupTest TaskGroup = "test"
	// TaskGroupClean contains cleanup tasks.
	TaskGroupClean TaskGroup = "clean"
	// TaskGroupOther contains uncategorized tasks.
	TaskGroupOther TaskGroup = "other"
)

// Task represents a discovered build task that can be executed.
type Task struct {
	// ID is a unique identifier for the task.
	ID string `json:"id"`

	// Name is the display name of the task.
	Name string `json:"name"`

	// Source identifies the tool that provided this task.
	Source string `json:"source"`

	// Folder is the URI of the workspace folder the task belongs to.
	Folder string `json:"folder,omitempty"`

	// Config is the build configuration name.
	Config string `json:"config"`

	// BuildType is the optional build type name within the configuration.
	BuildType string `json:"buildType,omitempty"`

	// Type is the task type.
	Type TaskType `json:"type"`

	// Group is the task category.
	Group TaskGroup `json:"group"`

	// Command is the full shell command line to execute.
	Command string `json:"command"`

	// Args are additional command arguments.
	Args []string `json:"args,omitempty"`

	// Cwd is the working directory for the task.
	Cwd string `json:"cwd,omitempty"`

	// ProblemMatchers are the problem matcher identifiers (e.g. "$gcc").
	ProblemMatchers []string `json:"problemMatchers"`
}

// Label returns the display label "<config>" or "<config> - <buildType>".
func Label(config, buildType string) string {
	if buildType == "" {
		return config
	}
	return config + " - " + buildType
}

// CommandLine returns the shell invocation including any extra args.
func (t *Task) CommandLine() string {
	if len(t.Args) == 0 {
		return t.Command
	}
	return t.Command + " " + strings.Join(t.Args, " ")
}

// String returns a short description of the task.
func (t *Task) String() string {
	return fmt.Sprintf("%s: %s", t.Source, t.Name)
}

// GenerateTaskID builds a stable task ID from the folder URI, source and name.
func GenerateTaskID(folder, source, name string) string {
	return fmt.Sprintf("%s:%s:%s", source, folder, name)
}

// Names shared by every cppbuild component.
const (
	// ToolName is the task source name used for registration.
	ToolName = "cppbuild"

	// ConfigDir is the per-folder directory holding the configuration files.
	ConfigDir = ".vscode"

	// BuildStepsFile describes configurations, build types and steps.
	BuildStepsFile = "c_cpp_build.json"

	// PropertiesFile is the C/C++ properties file the build steps are derived from.
	PropertiesFile = "c_cpp_properties.json"
)
