package logger

import (
	"runtime"
	"strings"
)

// PackageNameResolver finds the name of the package calling into the logger,
// relative to BasePackage.
type PackageNameResolver struct {
	BasePackage string
	Depth       int
}

func (r *PackageNameResolver) PackageName() string {
	pc, _, _, _ := runtime.Caller(r.depth())
	// eg github.com/blocknode-org/blocknode/internal/ack.init
	return r.packageOf(runtime.FuncForPC(pc).Name())
}

func (r *PackageNameResolver) packageOf(funcName string) string {
	split1 := strings.SplitN(funcName, r.BasePackage, 2)
	var packageAfterBase string
	if len(split1) < 2 {
		// not inside base package, use the full import path
		lastSlash := strings.LastIndex(split1[0], "/")
		dot := strings.Index(split1[0][lastSlash+1:], ".")
		if dot < 0 {
			packageAfterBase = split1[0]
		} else {
			packageAfterBase = split1[0][:lastSlash+1+dot]
		}
	} else {
		split2 := strings.SplitN(split1[1], ".", 2)
		packageAfterBase = split2[0]
	}
	return strings.Trim(packageAfterBase, "/")
}

func (r *PackageNameResolver) depth() int {
	// 2 because it's used from inside logging code. We want the caller of that.
	if r.Depth == 0 {
		return 2
	}
	return r.Depth
}
