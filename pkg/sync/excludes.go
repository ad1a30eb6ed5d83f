package sync

// defaultExcludePatterns are never synchronized when no include patterns are
// given. They match build artifacts, which the slaves produce themselves,
// version control metadata, and scratch files of the tools.
var defaultExcludePatterns = []string{
	// Objects, libraries and executables.
	"*.o",
	"*.obj",
	"*.ali",
	"*.a",
	"*.lib",
	"*.so",
	"*.so.*",
	"*.dll",
	"*.dylib",
	"*.exe",

	// Version control.
	".git",
	".svn",
	".hg",
	".bzr",
	"CVS",

	// Tool scratch and cache files.
	"gnatinspect.db*",
	"GNAT-TEMP-*",
	"b__*.ad[bs]",
	"*.bexch",
	"*.stderr",
	"*.stdout",
}

// DefaultExcludes is the compiled default exclusion list. It's built once
// when the process starts and must not be modified.
var DefaultExcludes = MustCompilePatterns(defaultExcludePatterns)
