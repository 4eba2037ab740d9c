package config

// Inline python programs run with `python -c`. They drive the stock
// voice/voice_chain.py module of a jarvis checkout, which has no command
// line entry point for boot or processing. The working directory must be the
// checkout root (work_dir).

// PreflightScript exits 1 when a module the voice workers import is missing.
const PreflightScript = `
import sys
try:
    import pyaudio
    import faster_whisper
    import numpy
    print("OK")
except ImportError as e:
    print(f"MISSING: {e}", file=sys.stderr)
    sys.exit(1)
`

// BootScript plays the boot sound and speaks a status line built from the
// JSON status in JARVIS_STATUS.
const BootScript = `
import json, os, sys
sys.path.insert(0, "voice")
from voice_chain import play_boot_sound, VoiceChain

play_boot_sound()
try:
    status = json.loads(os.environ.get("JARVIS_STATUS") or "{}")
except ValueError:
    status = {"error": "unreadable status"}
chain = VoiceChain()
if status and "error" not in status:
    message = "Systems online. All tests passing. Dev agent idle, growth agent idle. Awaiting command."
else:
    message = "Systems online. Awaiting command."
chain.speak(message)
print(json.dumps({"event": "boot_complete", "offline_mode": chain.offline_mode}), flush=True)
`

// ProcessScript transcribes the audio file in argv[1], speaks the response
// and reports tool calls. Disengage detection is left to the orchestrator.
const ProcessScript = `
import json, sys
sys.path.insert(0, "voice")
from voice_chain import VoiceChain

def plain(tc):
    if hasattr(tc, "model_dump"):
        tc = tc.model_dump()
    fn = tc.get("function") or {}
    return {"id": tc.get("id") or "", "function": {"name": fn.get("name") or "", "arguments": fn.get("arguments") or ""}}

chain = VoiceChain()
result = chain.process_audio(sys.argv[1])
print(json.dumps({"event": "transcript", "text": result["transcript"]}), flush=True)
if result["response"]:
    print(json.dumps({"event": "response", "text": result["response"]}), flush=True)
for tc in result.get("tool_calls") or []:
    print(json.dumps({"event": "tool_call", "call": plain(tc)}), flush=True)
if result["response"]:
    chain.speak(result["response"])
`
