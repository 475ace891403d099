package sources

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// buildStep is one step of a scaffolded configuration. Empty fields are
// omitted from the output.
type buildStep struct {
	name            string
	filePattern     string
	fileList        string
	outputDirectory string
	command         string
}

type buildType struct {
	name   string
	params [][2]string
}

type template struct {
	buildTypes []buildType
	steps      []buildStep
	matcher    string
}

func gccTemplate(cmd string) template {
	return template{
		buildTypes: []buildType{
			{name: "debug", params: [][2]string{{"buildTypeParams", "-O0 -g"}}},
			{name: "release", params: [][2]string{{"buildTypeParams", "-O2 -g0"}}},
		},
		steps: []buildStep{
			{
				name:            "C++ Compile Sample Step",
				filePattern:     "**/*.cpp",
				outputDirectory: "build/${buildTypeName}/${fileDirectory}",
				command:         cmd + " -c -std=c++17 ${buildTypeParams} (-I[$${includePath}]) (-D$${defines}) (-include [$${forcedInclude}]) [${filePath}] -o [${outputDirectory}/${fileName}.o]",
			},
			{
				name:     "C++ Link Sample Step",
				fileList: "build/${buildTypeName}/**/*.o",
				command:  cmd + " [$${filePath}] -o [build/${buildTypeName}/main.exe]",
			},
		},
		matcher: "$gcc",
	}
}

func msvcTemplate() template {
	return template{
		buildTypes: []buildType{
			{name: "debug", params: [][2]string{
				{"buildTypeParams", "/MDd /Od /RTCsu /Zi /Fd[build/${buildTypeName}/main.pdb]"},
				{"linkTypeParams", "/DEBUG"},
			}},
			{name: "release", params: [][2]string{
				{"buildTypeParams", "/MD /Ox"},
				{"linkTypeParams", ""},
			}},
		},
		steps: []buildStep{
			{
				name:    "Test if 'ScopeCppSDK' path variable is set.",
				command: `cmd.exe /C "echo %ScopeCppSDK%"`,
			},
			{
				name:            "C++ Compile Sample Step",
				filePattern:     "**/*.cpp",
				outputDirectory: "build/${buildTypeName}/${fileDirectory}",
				command:         `cl.exe ${buildTypeParams} /nologo /EHs /GR /GF /W3 /EHsc /FS /c (/I[$${includePath}]) (/D"$${defines}") (/FI[$${forcedInclude}]) [${filePath}] /Fo[${outputDirectory}/${fileName}.o]`,
			},
			{
				name:     "C++ Link Sample Step",
				fileList: "build/${buildTypeName}/**/*.o",
				command:  "link.exe /NOLOGO ${linkTypeParams} [$${filePath}] /OUT:[build/${buildTypeName}/main.exe] /LIBPATH:[${env:ScopeCppSDK}/VC/lib] /LIBPATH:[${env:ScopeCppSDK}/SDK/lib]",
			},
		},
		matcher: "$msCompile",
	}
}

// templateFor returns the template for an IntelliSense mode.
func templateFor(mode string) (template, bool) {
	switch mode {
	case "gcc-x64":
		return gccTemplate("g++"), true
	case "clang-x64":
		return gccTemplate("clang++"), true
	case "msvc-x64":
		return msvcTemplate(), true
	}
	return template{}, false
}

// CreateInitialBuildFile writes a starter build-steps file under root derived
// from the properties file. It does nothing and returns false when the
// build-steps file already exists or the properties file is missing or
// unreadable. Configurations with an unknown IntelliSense mode are skipped.
func CreateInitialBuildFile(root string) (bool, error) {
	properties, buildSteps := ConfigPaths(root)

	if _, err := os.Stat(buildSteps); err == nil {
		return false, nil
	}
	data, err := os.ReadFile(properties)
	if err != nil || !gjson.ValidBytes(data) {
		return false, nil
	}

	out, err := ScaffoldBuildSteps(data)
	if err != nil {
		return false, &BuildFileError{Path: buildSteps, Err: err}
	}
	if err := os.WriteFile(buildSteps, out, 0o644); err != nil {
		return false, &BuildFileError{Path: buildSteps, Err: err}
	}
	return true, nil
}

// ScaffoldBuildSteps renders a build-steps document for the content of a
// properties file. The result is indented with tabs.
func ScaffoldBuildSteps(properties []byte) ([]byte, error) {
	doc := `{"version":1}`
	doc, err := sjson.SetRaw(doc, "configurations", "[]")
	if err != nil {
		return nil, err
	}

	n := 0
	var setErr error
	gjson.GetBytes(properties, "configurations").ForEach(func(_, c gjson.Result) bool {
		tmpl, ok := templateFor(c.Get("intelliSenseMode").String())
		if !ok {
			return true
		}
		doc, setErr = appendConfiguration(doc, n, c.Get("name").String(), tmpl)
		n++
		return setErr == nil
	})
	if setErr != nil {
		return nil, setErr
	}

	return pretty.PrettyOptions([]byte(doc), &pretty.Options{
		Width:  80,
		Indent: "\t",
	}), nil
}

// docWriter applies sjson edits under a fixed prefix and keeps the first error.
type docWriter struct {
	doc    string
	prefix string
	err    error
}

func (w *docWriter) set(path string, value any) {
	if w.err != nil {
		return
	}
	w.doc, w.err = sjson.Set(w.doc, w.prefix+path, value)
}

func (w *docWriter) setIf(path, value string) {
	if value != "" {
		w.set(path, value)
	}
}

func appendConfiguration(doc string, i int, name string, tmpl template) (string, error) {
	w := &docWriter{doc: doc, prefix: fmt.Sprintf("configurations.%d.", i)}

	w.set("name", name)
	for j, bt := range tmpl.buildTypes {
		w.set(fmt.Sprintf("buildTypes.%d.name", j), bt.name)
		for _, p := range bt.params {
			w.set(fmt.Sprintf("buildTypes.%d.params.%s", j, p[0]), p[1])
		}
	}
	for j, s := range tmpl.steps {
		step := fmt.Sprintf("buildSteps.%d.", j)
		w.set(step+"name", s.name)
		w.setIf(step+"filePattern", s.filePattern)
		w.setIf(step+"fileList", s.fileList)
		w.setIf(step+"outputDirectory", s.outputDirectory)
		w.set(step+"command", s.command)
	}
	w.set("problemMatchers", []string{tmpl.matcher})

	if w.err != nil {
		return "", fmt.Errorf("render configuration %q: %w", name, w.err)
	}
	return w.doc, nil
}
