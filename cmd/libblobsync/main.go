// Command libblobsync builds the archive operations as a C shared library:
//
//	go build -buildmode=c-shared -o libblobsync.so ./cmd/libblobsync
//
// Every export is synchronous, never panics across the boundary, and treats
// a null string argument as empty.
package main

/*
#include <stdbool.h>
*/
import "C"

import (
	"os"
	"unsafe"

	"github.com/asad/blobsync/internal/archive"
)

func main() {}

func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}

// report stores code and the truncated message of err in the caller's out
// parameters, skipping any that are null.
func report(err error, code *C.longlong, message *C.char) {
	if code != nil {
		*code = C.longlong(archive.CodeOf(err))
	}
	if message != nil {
		buf := unsafe.Slice((*byte)(unsafe.Pointer(message)), maxErrorLength)
		fillMessage(buf, err.Error())
	}
}

//export putNewFile
func putNewFile(container, completeFilePath, fileName, connection *C.char, code *C.longlong, message *C.char) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(fileName)}
	if err := lib().adapter.PutNewFile(ctx, ref, goString(completeFilePath)); err != nil {
		report(err, code, message)
		return false
	}
	return true
}

//export putTheFile
func putTheFile(connection, completeFilePath, fileName, prevPhysicalPath, container *C.char, code *C.longlong, message *C.char) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(fileName)}
	origin := archive.OriginFromPrevPath(goString(prevPhysicalPath))
	if err := lib().adapter.PutTheFile(ctx, ref, goString(completeFilePath), origin); err != nil {
		report(err, code, message)
		return false
	}
	return true
}

//export getTheFile
func getTheFile(container, fileName, connection, destination *C.char, mode C.int) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(fileName)}
	return C.bool(lib().adapter.GetTheFile(ctx, ref, goString(destination), os.FileMode(mode).Perm()) == nil)
}

//export getTheFileStatus
func getTheFileStatus(container, file, connection *C.char) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(file)}
	return C.bool(lib().adapter.GetTheFileStatus(ctx, ref))
}

//export getTheFileLength
func getTheFileLength(container, file, connection *C.char, length *C.longlong) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(file)}
	n, err := lib().adapter.GetTheFileLength(ctx, ref)
	if err != nil {
		return false
	}
	if length != nil {
		*length = C.longlong(n)
	}
	return true
}

//export deleteTheFile
func deleteTheFile(container, file, connection *C.char) C.bool {
	ctx, cancel := lib().opContext()
	defer cancel()

	ref := archive.Ref{Connection: goString(connection), Container: goString(container), Name: goString(file)}
	return C.bool(lib().adapter.DeleteTheFile(ctx, ref) == nil)
}
