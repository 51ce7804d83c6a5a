package pe

import (
	"fmt"
	"strings"
)

// Ordinal-only imports carry no name in the image. For a few system
// libraries the ordinal assignments are stable and documented, so we
// can recover the real name; everything else gets a synthesized one.

var ws2_32Ordinals = map[uint16]string{
	1:   "accept",
	2:   "bind",
	3:   "closesocket",
	4:   "connect",
	5:   "getpeername",
	6:   "getsockname",
	7:   "getsockopt",
	8:   "htonl",
	9:   "htons",
	10:  "ioctlsocket",
	11:  "inet_addr",
	12:  "inet_ntoa",
	13:  "listen",
	14:  "ntohl",
	15:  "ntohs",
	16:  "recv",
	17:  "recvfrom",
	18:  "select",
	19:  "send",
	20:  "sendto",
	21:  "setsockopt",
	22:  "shutdown",
	23:  "socket",
	51:  "gethostbyaddr",
	52:  "gethostbyname",
	53:  "getprotobyname",
	54:  "getprotobynumber",
	55:  "getservbyname",
	56:  "getservbyport",
	57:  "gethostname",
	101: "WSAAsyncSelect",
	102: "WSAAsyncGetHostByAddr",
	103: "WSAAsyncGetHostByName",
	104: "WSAAsyncGetProtoByNumber",
	105: "WSAAsyncGetProtoByName",
	106: "WSAAsyncGetServByPort",
	107: "WSAAsyncGetServByName",
	108: "WSACancelAsyncRequest",
	109: "WSASetBlockingHook",
	110: "WSAUnhookBlockingHook",
	111: "WSAGetLastError",
	112: "WSASetLastError",
	113: "WSACancelBlockingCall",
	114: "WSAIsBlocking",
	115: "WSAStartup",
	116: "WSACleanup",
}

var oleaut32Ordinals = map[uint16]string{
	2:  "SysAllocString",
	3:  "SysReAllocString",
	4:  "SysAllocStringLen",
	5:  "SysReAllocStringLen",
	6:  "SysFreeString",
	7:  "SysStringLen",
	8:  "VariantInit",
	9:  "VariantClear",
	10: "VariantCopy",
	11: "VariantCopyInd",
	12: "VariantChangeType",
	15: "SafeArrayGetDim",
	16: "SafeArrayGetElemsize",
	17: "SafeArrayGetUBound",
	18: "SafeArrayGetLBound",
	19: "SafeArrayLock",
	20: "SafeArrayUnlock",
	23: "SafeArrayAccessData",
	24: "SafeArrayUnaccessData",
	25: "SafeArrayGetElement",
	26: "SafeArrayPutElement",
	27: "SafeArrayCopy",
}

var knownOrdinals = map[string]map[uint16]string{
	"ws2_32":   ws2_32Ordinals,
	"wsock32":  ws2_32Ordinals, // same assignments for the shared ordinals
	"oleaut32": oleaut32Ordinals,
}

// libBase normalizes a descriptor library name: lowercase, extension
// stripped.
func libBase(lib string) string {
	lib = strings.ToLower(lib)
	if i := strings.LastIndex(lib, "."); i >= 0 {
		lib = lib[:i]
	}
	return lib
}

// ordinalImportName resolves an ordinal-only import to a display name,
// via the known-ordinal tables when possible.
func ordinalImportName(lib string, ordinal uint16) string {
	base := libBase(lib)
	if table, ok := knownOrdinals[base]; ok {
		if name, ok := table[ordinal]; ok {
			return importName(lib, name)
		}
	}
	return fmt.Sprintf("%s_ord_%d", base, ordinal)
}

// importName builds the library-qualified display name of an import.
func importName(lib, name string) string {
	return libBase(lib) + "." + name
}
