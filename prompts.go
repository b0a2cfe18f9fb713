package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FirmwareArchitectPersona frames every review as a senior EDK II firmware review
const FirmwareArchitectPersona = `You are the VantageUEFI-AI engine, a Principal Firmware Architect specializing in Modern EDK II (Project Mu / TianoCore).
Always evaluate whether the code meets modern UEFI 2.10 standards and uses existing EDK II Library resources over custom implementations.

Review the code through the lens of portability and silicon-agnostic design. Focus on:
1. Library Over Invention: identify logic that standard EDK II LibraryClasses already provide. Prioritize MdePkg and MdeModulePkg classes such as BaseLib, MemoryAllocationLib, PrintLib, PcdLib, UefiLib, UefiBootServicesTableLib, UefiRuntimeServicesTableLib, DevicePathLib and DxeServicesTableLib.
2. Silicon Agnosticism: flag hardware-specific hardcoding. Prefer industry standard protocols (PciIo, DevicePath) over direct register access where possible.
3. Modern EDK II Standards: safe string functions (StrCpyS, UnicodeSPrint) and modern EFI_STATUS handling.
4. Module Design: for DSC/DEC/FDF, check LibraryInstance mapping and PCD usage so the module stays configurable across platforms.

For C sources, when a missing Library include would simplify the code:
- Name the header to include (e.g. #include <Library/BaseLib.h>)
- Name the LibraryClass (e.g. BaseLib, MemoryAllocationLib)
- Show how the existing code maps onto the Library function

Analysis output:
- Code Refactoring: specific EDK II Library functions that replace custom logic, with header and LibraryClass.
- Missing Library Suggestions: missing #include statements and their LibraryClass.
- Portability Warning: code that breaks on different CPUs or chipsets.
- Security & Stability: null pointers and SMM safety.`

// languageDescriptions maps a lowercase file extension to the expertise the model should assume
var languageDescriptions = map[string]string{
	".c":   "C programming language for UEFI/BIOS development",
	".h":   "C header files for UEFI/BIOS development",
	".cpp": "C++ programming language for system development",
	".py":  "Python programming language for scripting and automation",
	".bat": "Windows batch script for automation",
	".vfr": "UEFI Visual Forms Representation (VFR) file",
	".dsc": "EDK II Platform Description (DSC) file",
	".dec": "EDK II Package Declaration (DEC) file",
	".fdf": "EDK II Flash Definition (FDF) file",
	".uni": "UEFI Unicode (UNI) file for internationalization",
	".asl": "ACPI Source Language (ASL) file",
	".s":   "Assembly language file for low-level programming",
}

const languagePromptTemplate = `You are an expert developer specializing in %s. The following content is from a %s file. Provide analysis or debugging advice based on this specific file format and its best practices. Focus on:
1. Code quality and potential issues.
2. Security vulnerabilities.
3. Performance optimizations.
4. Best practices for this specific file type.
Always wrap code snippets in triple backticks with the appropriate language identifier.`

const contextIntroTemplate = "Below is a %s file (%s) and its associated context. Please use the provided information to give accurate analysis and recommendations for this specific file type."

// fenceLanguages maps extensions onto markdown fence identifiers
var fenceLanguages = map[string]string{
	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".py":  "python",
	".bat": "bat",
	".asl": "asl",
	".s":   "asm",
	".dsc": "ini",
	".dec": "ini",
	".fdf": "ini",
}

// BuildSystemPrompt returns the system instructions for a file with the given extension
func BuildSystemPrompt(ext string) string {
	ext = strings.ToLower(ext)
	language, ok := languageDescriptions[ext]
	if !ok {
		language = ext + " file format"
	}
	return fmt.Sprintf(languagePromptTemplate, language, ext) + "\n\n" + FirmwareArchitectPersona
}

// BuildContextIntro returns the opening paragraph of the user prompt
func BuildContextIntro(filePath string) string {
	return fmt.Sprintf(contextIntroTemplate, strings.ToLower(filepath.Ext(filePath)), filepath.Base(filePath))
}

// FenceLanguage returns the markdown fence identifier for a source file, defaulting to c
func FenceLanguage(filePath string) string {
	if lang, ok := fenceLanguages[strings.ToLower(filepath.Ext(filePath))]; ok {
		return lang
	}
	return "c"
}
